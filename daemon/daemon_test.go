package daemon

import "testing"

func TestIsDaemon(t *testing.T) {
	t.Setenv(daemonEnv, "")
	if IsDaemon() {
		t.Error("IsDaemon should be false without the env marker")
	}
	t.Setenv(daemonEnv, "true")
	if !IsDaemon() {
		t.Error("IsDaemon should be true with the env marker set")
	}
}

func TestParsePID(t *testing.T) {
	pid, err := parsePID([]byte(" 4321\n"))
	if err != nil || pid != 4321 {
		t.Fatalf("parsePID = %d, %v", pid, err)
	}
	for _, bad := range []string{"", "abc", "-1", "0"} {
		if _, err := parsePID([]byte(bad)); err == nil {
			t.Errorf("parsePID(%q) should fail", bad)
		}
	}
}
