// Copyright 2016 Aleksandr Demakin. All rights reserved.

// Package env passes parameters of a communication domain to child processes
// through environment variables <PREFIX>_NAME and <PREFIX>_RANK.
package env

import (
	"os"
	"strconv"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

// DefaultPrefix is the prefix of variable names used by the runtime.
const DefaultPrefix = "SHARED"

const (
	nameKey = "NAME"
	rankKey = "RANK"
)

// Params are the values a worker needs to connect to a domain.
type Params struct {
	Name string `envconfig:"NAME" required:"true"`
	Rank uint   `envconfig:"RANK" required:"true"`
}

func variable(prefix, key string) string {
	return strings.ToUpper(prefix) + "_" + key
}

// Environ returns KEY=VALUE pairs for p, which can be appended to a command's environment.
func Environ(prefix string, p Params) []string {
	return []string{
		variable(prefix, nameKey) + "=" + p.Name,
		variable(prefix, rankKey) + "=" + strconv.FormatUint(uint64(p.Rank), 10),
	}
}

// Store sets the variables for p in the environment of the current process.
func Store(prefix string, p Params) error {
	if len(prefix) == 0 {
		return errors.New("empty env prefix")
	}
	for _, kv := range Environ(prefix, p) {
		idx := strings.IndexByte(kv, '=')
		if err := os.Setenv(kv[:idx], kv[idx+1:]); err != nil {
			return errors.Wrap(err, "failed to set env")
		}
	}
	return nil
}

// Load reads the parameters from the environment of the current process.
// Ranks are parsed like C's strtoul does, so "0x10" and "010" are accepted.
func Load(prefix string) (Params, error) {
	var p Params
	if len(prefix) == 0 {
		return p, errors.New("empty env prefix")
	}
	// envconfig falls back to unprefixed names, which must not be used here.
	for _, key := range []string{nameKey, rankKey} {
		if _, ok := os.LookupEnv(variable(prefix, key)); !ok {
			return Params{}, errors.Errorf("%s is not set", variable(prefix, key))
		}
	}
	if err := envconfig.Process(prefix, &p); err != nil {
		return Params{}, errors.Wrap(err, "failed to load domain params")
	}
	if len(p.Name) == 0 {
		return Params{}, errors.New("empty domain name")
	}
	return p, nil
}
