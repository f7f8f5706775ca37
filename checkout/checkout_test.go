package checkout

import (
	"errors"
	"testing"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name                        string
		exists                      bool
		headRev, wantRev            string
		remoteURL, wantRemoteURL    string
		headErr, remoteErr          error
		want                        State
	}{
		{"missing directory clones", false, "", "abc", "", "/db", nil, nil, ToClone},
		{"matching head is clean", true, "abc", "abc", "/db", "/db", nil, nil, Clean},
		{"mismatched head matching remote checks out", true, "abc", "def", "/db", "/db", nil, nil, ToCheckout},
		{"mismatched remote clones", true, "abc", "def", "/other", "/db", nil, nil, ToClone},
		{"failed head probe clones", true, "", "def", "/db", "/db", errors.New("x"), nil, ToClone},
		{"failed remote probe clones", true, "abc", "def", "", "/db", nil, errors.New("x"), ToClone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.exists, tt.headRev, tt.wantRev, tt.remoteURL, tt.wantRemoteURL, tt.headErr, tt.remoteErr)
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
		})
	}
}
