// Copyright 2016 Aleksandr Demakin. All rights reserved.

package sync

import (
	"fmt"
	"sync"
)

func ExampleMutex() {
	// in real programs the mutex lives in a shared memory region.
	var mut Mutex
	if err := mut.Init(true, nil); err != nil {
		panic(err)
	}
	defer mut.Destroy()
	var sharedValue uint64
	var wg sync.WaitGroup
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if err := mut.Lock(); err != nil {
					panic(err)
				}
				sharedValue++
				mut.Unlock()
			}
		}()
	}
	wg.Wait()
	fmt.Println(sharedValue)
	// Output: 8000
}
