package mutex

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedThing struct{ name string }

func (n namedThing) MutexName() string { return n.name }

type stringerThing struct{}

func (stringerThing) String() string { return "stringer" }

func TestResolveKey(t *testing.T) {
	tests := []struct {
		param   any
		key     LockKey
		mode    KeyMode
		wantErr bool
	}{
		{param: 42, key: 42, mode: ModeManual},
		{param: int64(math.MaxUint32), key: math.MaxUint32, mode: ModeManual},
		{param: uint8(7), key: 7, mode: ModeManual},
		{param: LockKey(9), key: 9, mode: ModeManual},
		{param: "jobs", key: HashName("jobs"), mode: ModeDerived},
		{param: namedThing{"queue"}, key: HashName("queue"), mode: ModeDerived},
		{param: stringerThing{}, key: HashName("stringer"), mode: ModeDerived},
		{param: 0, wantErr: true},
		{param: -1, wantErr: true},
		{param: int64(math.MaxUint32) + 1, wantErr: true},
		{param: LockKey(0), wantErr: true},
		{param: 3.5, wantErr: true},
		{param: nil, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%T(%v)", tt.param, tt.param), func(t *testing.T) {
			key, mode, err := ResolveKey(tt.param)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMutex))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.mode, mode)
		})
	}
}

func TestHashNameIsStable(t *testing.T) {
	// crc32("123456789") is the standard check value of the IEEE polynomial
	assert.Equal(t, LockKey(0xCBF43926), HashName("123456789"))
	assert.Equal(t, HashName("a"), HashName("a"))
	assert.NotEqual(t, HashName("a"), HashName("b"))
}

func TestLockKeyString(t *testing.T) {
	assert.Equal(t, "0000002a", LockKey(42).String())
	assert.Equal(t, "manual", ModeManual.String())
	assert.Equal(t, "derived", ModeDerived.String())
}
