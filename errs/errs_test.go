package errs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WitIOT/tao/errs"
)

func Test_LastSetGetClear(t *testing.T) {
	l := errs.NewLast()

	_, ok := l.Get()
	assert.False(t, ok)

	l.Set("configure", errs.BadROI, "roi exceeds sensor")
	rec, ok := l.Get()
	require.True(t, ok)
	assert.Equal(t, "configure", rec.Func)
	assert.Equal(t, errs.BadROI, rec.Code)

	// Get must not clear the record.
	_, ok = l.Get()
	assert.True(t, ok)

	l.Clear()
	_, ok = l.Get()
	assert.False(t, ok)
}

func Test_CodeString(t *testing.T) {
	assert.Equal(t, "bad-roi", errs.BadROI.String())
	assert.Equal(t, "errno(2)", errs.Code(2).String())
}

func Test_ReportHandler(t *testing.T) {
	var got errs.Record
	errs.SetHandler(func(r errs.Record) { got = r })
	defer errs.SetHandler(nil)

	l := errs.NewLast()
	l.Set("start", errs.NotReady, "")
	l.Report()

	assert.Equal(t, errs.NotReady, got.Code)
}
