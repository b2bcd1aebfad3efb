package teif

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMatricule(t *testing.T) {
	assert.Equal(t, "0736202XAM000", NormalizeMatricule("0736202X/A/M/000"))
	assert.Equal(t, "0736202XAM000", NormalizeMatricule("0736202xam000"))
	assert.Equal(t, "0736202XAM000", NormalizeMatricule(" 0736202 X A M 000 "))
}

func TestValidateMatriculeLongForm(t *testing.T) {
	require.NoError(t, ValidateMatricule("1234568XAM000"))
	require.NoError(t, ValidateMatricule("0987654MBN000"))
	require.NoError(t, ValidateMatricule("1234568X/A/M/000"))
}

func TestValidateMatriculeShortForm(t *testing.T) {
	// 1234568 % 23 = 20 -> 'X'
	require.NoError(t, ValidateMatricule("1234568X"))
}

func TestValidateMatriculeWrongKey(t *testing.T) {
	// 1234567 % 23 = 19 -> 'W', pas 'X'.
	err := ValidateMatricule("1234567X")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clé de contrôle")
}

func TestValidateMatriculeTooShort(t *testing.T) {
	require.Error(t, ValidateMatricule("123456"))
	require.Error(t, ValidateMatricule(""))
}

func TestValidateMatriculeNonDigitPrefix(t *testing.T) {
	require.Error(t, ValidateMatricule("12A4567XAM000"))
}

func TestValidateMatriculeBadTVACode(t *testing.T) {
	// 'Z' n'est pas un code TVA admis.
	err := ValidateMatricule("1234568XZM000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code TVA")
}

func TestValidateMatriculeBadCategoryCode(t *testing.T) {
	err := ValidateMatricule("1234568XAZ000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catégorie")
}

func TestValidateMatriculeBadEstablishment(t *testing.T) {
	err := ValidateMatricule("1234568XAM0A0")
	require.Error(t, err)
}

func TestComputeMatriculeKey(t *testing.T) {
	key, err := ComputeMatriculeKey("1234568")
	require.NoError(t, err)
	assert.Equal(t, byte('X'), key)

	key, err = ComputeMatriculeKey("1234567")
	require.NoError(t, err)
	assert.Equal(t, byte('W'), key)

	_, err = ComputeMatriculeKey("123")
	require.Error(t, err)
}
