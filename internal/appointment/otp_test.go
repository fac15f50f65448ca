package appointment

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateOTP(t *testing.T) {
	sixDigits := regexp.MustCompile(`^[1-9][0-9]{5}$`)

	seen := map[string]bool{}
	for i := 0; i < 500; i++ {
		otp, err := GenerateOTP()
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, otp)
		seen[otp] = true
	}
	assert.Greater(t, len(seen), 400, "codes should not repeat often")
}

func TestOTPMatches(t *testing.T) {
	assert.True(t, otpMatches("482913", "482913"))
	assert.False(t, otpMatches("482913", "000000"))
	assert.False(t, otpMatches("482913", "482913 "))
	assert.False(t, otpMatches("482913", "48291"))
	assert.False(t, otpMatches("482913", ""))
}
