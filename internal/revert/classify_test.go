package revert

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeDataError struct {
	msg  string
	data interface{}
}

func (f fakeDataError) Error() string          { return f.msg }
func (f fakeDataError) ErrorData() interface{} { return f.data }

func TestClassifyNilError(t *testing.T) {
	c := Classify(nil)
	assert.Equal(t, KindOther, c.Kind)
}

func TestClassifyHFRecoveredBySelector(t *testing.T) {
	err := fakeDataError{msg: "execution reverted", data: "0x930bb771"}
	c := Classify(err)
	assert.Equal(t, KindHFRecovered, c.Kind)
	assert.True(t, c.IsRecoverable())
	assert.Equal(t, HFNotBelowThresholdSelector, c.Selector)
}

func TestClassifyRateLimited(t *testing.T) {
	err := errors.New("429 Too Many Requests")
	c := Classify(err)
	assert.Equal(t, KindRateLimited, c.Kind)
	assert.False(t, c.IsRecoverable())
}

func TestClassifyGenericRevert(t *testing.T) {
	err := fakeDataError{msg: "execution reverted: insufficient collateral", data: "0xdeadbeef"}
	c := Classify(err)
	assert.Equal(t, KindContractRevert, c.Kind)
	assert.Equal(t, "0xdeadbeef", c.Selector)
}

func TestClassifyTransportError(t *testing.T) {
	err := errors.New("dial tcp: connection refused")
	c := Classify(err)
	assert.Equal(t, KindTransport, c.Kind)
}
