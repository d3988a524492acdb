package shared

import (
	"errors"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	tc := []struct {
		goos    string
		wantBin string
		wantErr bool
	}{
		{goos: "darwin", wantBin: "open"},
		{goos: "linux", wantBin: "xdg-open"},
		{goos: "windows", wantBin: "rundll32"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.goos, func(t *testing.T) {
			cmd, err := browserCommand(tt.goos, "https://www.spotify.com/premium/")
			if tt.wantErr {
				if err == nil {
					t.Error("expected unsupported platform error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cmd.Args[0] != tt.wantBin {
				t.Errorf("expected %s, got %s", tt.wantBin, cmd.Args[0])
			}
			if cmd.Args[len(cmd.Args)-1] != "https://www.spotify.com/premium/" {
				t.Errorf("url not passed through: %v", cmd.Args)
			}
		})
	}
}

func TestOpenBrowserRejectsNonWebURLs(t *testing.T) {
	for _, target := range []string{"", "file:///etc/passwd", "javascript:alert(1)", "https://"} {
		if err := OpenBrowser(target); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("OpenBrowser(%q): expected ErrInvalidArgument, got %v", target, err)
		}
	}
}
