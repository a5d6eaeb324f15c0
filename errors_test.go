package edgemq

import (
	"errors"
	"testing"
)

func TestConnackError(t *testing.T) {
	tests := []struct {
		code uint8
		want error
	}{
		{1, ErrUnacceptableProtocolVersion},
		{2, ErrIdentifierRejected},
		{3, ErrServerUnavailable},
		{4, ErrBadUsernameOrPassword},
		{5, ErrNotAuthorized},
		{99, nil},
	}

	for _, tt := range tests {
		err := connackError(tt.code)
		if !errors.Is(err, ErrConnectionRefused) {
			t.Errorf("code %d: %v does not wrap ErrConnectionRefused", tt.code, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("code %d: %v does not wrap %v", tt.code, err, tt.want)
		}
	}
}
