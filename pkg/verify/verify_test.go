package verify

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fitsstore-go/pkg/errkind"
)

func script(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not available")
	}
	p := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return p
}

func TestParseFitsverify(t *testing.T) {
	rep, ok := ParseFitsverify("HDU 1\n**** Verification found 2 warning(s) and 1 error(s). ****\n")
	require.True(t, ok)
	assert.Equal(t, 2, rep.Warnings)
	assert.Equal(t, 1, rep.Errors)

	_, ok = ParseFitsverify("segfault")
	assert.False(t, ok)
}

func TestFitsverifyNonZeroExitStillParses(t *testing.T) {
	r := Runner{FitsverifyPath: script(t, `echo "**** Verification found 0 warning(s) and 3 error(s). ****"; exit 1`)}
	rep, err := r.Fitsverify(context.Background(), "x.fits")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Errors)
}

func TestFitsverifyUnconfigured(t *testing.T) {
	rep, err := Runner{}.Fitsverify(context.Background(), "x.fits")
	require.NoError(t, err)
	assert.Nil(t, rep)
}

func TestMDValidateExitCodes(t *testing.T) {
	ok := Runner{MDValidatorPath: script(t, `echo fine`)}
	rep, err := ok.MDValidate(context.Background(), "x.fits")
	require.NoError(t, err)
	assert.True(t, rep.Ready)

	bad := Runner{MDValidatorPath: script(t, `echo "missing OBSID"; exit 1`)}
	rep, err = bad.MDValidate(context.Background(), "x.fits")
	require.NoError(t, err)
	assert.False(t, rep.Ready)
	assert.Contains(t, rep.Text, "missing OBSID")
}

func TestRunTimeoutIsTransient(t *testing.T) {
	r := Runner{MDValidatorPath: script(t, `sleep 5`), Timeout: 50 * time.Millisecond}
	_, err := r.MDValidate(context.Background(), "x.fits")
	require.Error(t, err)
	assert.True(t, errkind.Transient.Has(err))
}
