package procutil

import "testing"

func TestLookupEnv(t *testing.T) {
	const name = EnvVar("JVM_ABI_TEST_VALUE")
	for value, tc := range map[string]struct {
		wantBool bool
		wantInt  int
	}{
		"true":  {wantBool: true, wantInt: -1},
		"0":     {wantBool: false, wantInt: 0},
		" 12 ":  {wantBool: true, wantInt: 12},
		"bogus": {wantBool: true, wantInt: -1},
	} {
		t.Run(value, func(t *testing.T) {
			t.Setenv(string(name), value)
			if got := LookupBoolEnv(name, true); got != tc.wantBool {
				t.Errorf("LookupBoolEnv: want %v, got %v", tc.wantBool, got)
			}
			if got := LookupIntEnv(name, -1); got != tc.wantInt {
				t.Errorf("LookupIntEnv: want %d, got %d", tc.wantInt, got)
			}
		})
	}
}
