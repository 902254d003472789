package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/redefine/internal/classfile"
	rerrors "github.com/standardbeagle/redefine/internal/errors"
)

// TestFileValidator validates the class file validator
func TestFileValidator(t *testing.T) {
	class := classfile.NewBuilder("app/Main").Method("main", "([Ljava/lang/String;)V").Bytes()

	t.Run("ValidClassFile", func(t *testing.T) {
		path := writeTempFile(t, "Main.class", class)
		b, err := NewFileValidator(100).ReadClassFile(path)
		require.NoError(t, err)
		assert.Equal(t, class, b)
	})

	t.Run("WrongSuffix", func(t *testing.T) {
		path := writeTempFile(t, "Main.java", class)
		err := NewFileValidator(100).ValidateClassFile(path)
		assert.ErrorIs(t, err, ErrNotClassFile)
	})

	t.Run("DisguisedFile", func(t *testing.T) {
		path := writeTempFile(t, "Image.class", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
		err := NewFileValidator(100).ValidateClassFile(path)
		assert.ErrorIs(t, err, ErrNotClassFile)
		assert.ErrorIs(t, err, classfile.ErrBadMagic)
	})

	t.Run("TruncatedHeader", func(t *testing.T) {
		path := writeTempFile(t, "Short.class", []byte{0xCA, 0xFE})
		err := NewFileValidator(100).ValidateClassFile(path)
		assert.ErrorIs(t, err, classfile.ErrTruncated)
	})

	t.Run("TooLarge", func(t *testing.T) {
		big := append(append([]byte(nil), class...), make([]byte, 2048)...)
		path := writeTempFile(t, "Big.class", big)
		err := NewFileValidator(1).ValidateClassFile(path)
		assert.ErrorIs(t, err, ErrTooLarge)
	})

	t.Run("Directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "pkg.class")
		require.NoError(t, os.Mkdir(dir, 0o755))
		err := NewFileValidator(100).ValidateClassFile(dir)
		assert.ErrorIs(t, err, ErrNotClassFile)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := NewFileValidator(100).ReadClassFile(filepath.Join(t.TempDir(), "Gone.class"))
		var fileErr *rerrors.FileError
		require.ErrorAs(t, err, &fileErr)
		assert.Equal(t, "stat", fileErr.Operation)
		assert.Equal(t, rerrors.ErrorTypeFileNotFound, fileErr.Type)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("DefaultLimit", func(t *testing.T) {
		assert.Equal(t, int64(DefaultMaxClassSizeKB*1024), NewFileValidator(0).MaxSize)
	})
}

func TestFileValidatorWithin(t *testing.T) {
	root := t.TempDir()
	class := classfile.NewBuilder("app/Main").Bytes()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "Main.class"), class, 0o644))

	v := NewFileValidator(100).Within(root)
	assert.Empty(t, NewFileValidator(100).Root, "Within must not modify the receiver")

	b, err := v.ReadClassFile("app/Main.class")
	require.NoError(t, err)
	assert.Equal(t, class, b)

	_, err = v.ReadClassFile("../outside/Main.class")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	outside := writeTempFile(t, "Other.class", class)
	_, err = v.ReadClassFile(outside)
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestFileValidatorSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := writeTempFile(t, "Secret.class", classfile.NewBuilder("x/Secret").Bytes())
	link := filepath.Join(root, "Secret.class")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, err := NewFileValidator(100).Within(root).ReadClassFile("Secret.class")
	assert.ErrorIs(t, err, ErrOutsideRoot)
}

func TestCheckHeader(t *testing.T) {
	assert.NoError(t, CheckHeader([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 52}))
	assert.ErrorIs(t, CheckHeader([]byte{0xCA, 0xFE, 0xBA, 0xBE, 0, 0, 0, 12}), ErrNotClassFile)
}

// writeTempFile helper creates a temporary file with content
func writeTempFile(t *testing.T, name string, content []byte) string {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, name)
	err := os.WriteFile(tmpFile, content, 0644)
	require.NoError(t, err)
	return tmpFile
}
