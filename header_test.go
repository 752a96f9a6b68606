package nameregistry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		h    RecordHeader
	}{
		{"owner only", RecordHeader{Owner: testAddress(1)}},
		{"with class", RecordHeader{Owner: testAddress(1), Class: Some(testAddress(2))}},
		{"with parent", RecordHeader{ParentName: Some(testAddress(3)), Owner: testAddress(1)}},
		{"all fields", RecordHeader{ParentName: Some(testAddress(3)), Owner: testAddress(1), Class: Some(testAddress(2))}},
		{"uninitialized", RecordHeader{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.h.Encode()
			got, err := DecodeHeader(buf[:])
			require.NoError(t, err)
			assert.Equal(t, tt.h, got)
		})
	}
}

func TestHeaderFieldOrder(t *testing.T) {
	h := RecordHeader{ParentName: Some(testAddress(0xaa)), Owner: testAddress(0xbb), Class: Some(testAddress(0xcc))}
	buf := h.Encode()

	assert.Equal(t, byte(0xaa), buf[0])
	assert.Equal(t, byte(0xaa), buf[31])
	assert.Equal(t, byte(0xbb), buf[32])
	assert.Equal(t, byte(0xbb), buf[63])
	assert.Equal(t, byte(0xcc), buf[64])
	assert.Equal(t, byte(0xcc), buf[95])
}

func TestDecodeHeaderShortInput(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1))
	require.ErrorIs(t, err, ErrInvalidHeader)

	_, err = DecodeHeader(nil)
	require.ErrorIs(t, err, ErrInvalidHeader)
}

func TestDecodeHeaderIgnoresDataRegion(t *testing.T) {
	h := RecordHeader{Owner: testAddress(9)}
	storage := make([]byte, HeaderSize+50)
	h.PutInto(storage)
	storage[HeaderSize] = 0xff

	got, err := DecodeHeader(storage)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderIsInitialized(t *testing.T) {
	assert.False(t, RecordHeader{}.IsInitialized())
	assert.False(t, RecordHeader{Class: Some(testAddress(2))}.IsInitialized())
	assert.True(t, RecordHeader{Owner: testAddress(1)}.IsInitialized())
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "out_of_space", ErrorKind(ErrOutOfSpace))
	assert.Equal(t, "unauthorized", ErrorKind(fmt.Errorf("update: %w", ErrUnauthorized)))
	assert.Equal(t, "internal", ErrorKind(assert.AnError))
}

func TestErrorForKind(t *testing.T) {
	for _, k := range errorKinds {
		assert.Equal(t, k.err, ErrorForKind(ErrorKind(k.err)))
	}
	assert.Nil(t, ErrorForKind("internal"))
	assert.Nil(t, ErrorForKind("ok"))
}

