package utils

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMatchesByKind(t *testing.T) {
	err := NewAppError(KindNotFound, "resolve shipment", "no shipment matches business key").WithID("SHP-1")
	wrapped := fmt.Errorf("transition: %w", err)

	assert.True(t, errors.Is(wrapped, ErrNotFound))
	assert.False(t, errors.Is(wrapped, ErrDataIntegrity))
	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.Equal(t, "resolve shipment: no shipment matches business key (id=SHP-1)", err.Error())
}

func TestAppErrorMessageIncludesStoreAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewAppError(KindTransient, "read upload", "store unreachable").
		WithID("u-1").
		WithStore("primary").
		Wrap(cause)

	assert.Equal(t, "read upload: store unreachable (id=u-1, store=primary): connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrorKind(""), KindOf(cause))
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	km := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("shipment-1")
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, km.size())
}
