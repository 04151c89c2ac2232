package procutil

import (
	"os"
	"strconv"
	"strings"
)

type EnvVar string

const (
	// JVM_ABI_WORKERS overrides the configured worker count.
	JVM_ABI_WORKERS = EnvVar("JVM_ABI_WORKERS")
	// JVM_ABI_DEBUG enables debug logging.
	JVM_ABI_DEBUG = EnvVar("JVM_ABI_DEBUG")
)

func LookupBoolEnv(name EnvVar, defaultValue bool) bool {
	if val, ok := os.LookupEnv(string(name)); ok {
		switch strings.ToLower(val) {
		case "true", "1":
			return true
		case "false", "0":
			return false
		}
	}
	return defaultValue
}

// LookupIntEnv returns the integer value of the variable, or defaultValue
// when it is unset or not a number.
func LookupIntEnv(name EnvVar, defaultValue int) int {
	if val, ok := os.LookupEnv(string(name)); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
	}
	return defaultValue
}

func LookupEnv(name EnvVar) (string, bool) {
	return os.LookupEnv(string(name))
}
