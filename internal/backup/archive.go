package backup

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"krisa-backup/internal/logging"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/packet"
)

// ArchiveCodec turns dump files into encrypted artifacts and back. The
// forward path is tar, gzip, then OpenPGP symmetric encryption with
// AES-256, so artifacts can also be opened with a stock gpg binary.
type ArchiveCodec struct {
	baseDir string
	logger  *logging.Logger
}

// NewArchiveCodec creates a codec that writes artifacts into baseDir
func NewArchiveCodec(baseDir string, logger *logging.Logger) *ArchiveCodec {
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &ArchiveCodec{baseDir: baseDir, logger: logger}
}

// Encrypt packs dumpPath into a tar.gz and encrypts it into the codec's
// base directory, returning the artifact path. On success the dump and the
// intermediate tar.gz are removed; on failure the dump is preserved so the
// data survives even when archiving does not.
func (ac *ArchiveCodec) Encrypt(dumpPath, passphrase, prefix string, now time.Time) (string, error) {
	if passphrase == "" {
		return "", NewValidationError("encryption passphrase cannot be empty", nil)
	}

	dumpInfo, err := os.Stat(dumpPath)
	if err != nil {
		return "", NewNotFoundError("dump file not found", err).WithContext("path", dumpPath)
	}

	start := time.Now()
	archiveName := BuildArchiveName(prefix, now)
	gpgPath := filepath.Join(ac.baseDir, archiveName)
	tarGzPath := strings.TrimSuffix(gpgPath, ArchiveSuffix) + tarGzSuffix

	if err := ac.writeTarGz(dumpPath, tarGzPath); err != nil {
		ac.removeQuietly(tarGzPath)
		return "", err
	}

	if err := ac.encryptFile(tarGzPath, gpgPath, passphrase); err != nil {
		ac.removeQuietly(gpgPath)
		ac.removeQuietly(tarGzPath)
		return "", err
	}

	var archiveSize int64
	if info, statErr := os.Stat(gpgPath); statErr == nil {
		archiveSize = info.Size()
	}

	ac.removeQuietly(tarGzPath)
	ac.removeQuietly(dumpPath)

	ac.logger.LogArchiveCreated(gpgPath, dumpInfo.Size(), archiveSize, time.Since(start))

	return gpgPath, nil
}

// writeTarGz wraps a single file into a gzip-compressed tar stream. The
// entry carries only the base name, so extraction never recreates the
// absolute paths of the machine that produced the archive.
func (ac *ArchiveCodec) writeTarGz(srcPath, tarGzPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return NewStorageError("failed to open dump for archiving", err).WithContext("path", srcPath)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return NewStorageError("failed to stat dump for archiving", err).WithContext("path", srcPath)
	}

	out, err := os.Create(tarGzPath)
	if err != nil {
		return NewStorageError("failed to create archive file", err).WithContext("path", tarGzPath)
	}
	defer out.Close()

	gzWriter := gzip.NewWriter(out)
	tarWriter := tar.NewWriter(gzWriter)

	header := &tar.Header{
		Name:    filepath.Base(srcPath),
		Mode:    0600,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tarWriter.WriteHeader(header); err != nil {
		return NewStorageError("failed to write archive header", err)
	}
	if _, err := io.Copy(tarWriter, src); err != nil {
		return NewStorageError("failed to write archive contents", err)
	}

	if err := tarWriter.Close(); err != nil {
		return NewStorageError("failed to finalize tar stream", err)
	}
	if err := gzWriter.Close(); err != nil {
		return NewStorageError("failed to finalize gzip stream", err)
	}
	return out.Close()
}

// encryptFile symmetrically encrypts srcPath into dstPath with AES-256
func (ac *ArchiveCodec) encryptFile(srcPath, dstPath, passphrase string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return NewStorageError("failed to open archive for encryption", err).WithContext("path", srcPath)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return NewStorageError("failed to create encrypted artifact", err).WithContext("path", dstPath)
	}
	defer dst.Close()

	hints := &openpgp.FileHints{IsBinary: true, FileName: filepath.Base(srcPath)}
	config := &packet.Config{DefaultCipher: packet.CipherAES256}

	plaintext, err := openpgp.SymmetricallyEncrypt(dst, []byte(passphrase), hints, config)
	if err != nil {
		return NewEncryptionError("failed to start encryption", err)
	}
	if _, err := io.Copy(plaintext, src); err != nil {
		plaintext.Close()
		return NewEncryptionError("failed to encrypt archive", err)
	}
	if err := plaintext.Close(); err != nil {
		return NewEncryptionError("failed to finalize encryption", err)
	}
	return dst.Close()
}

// Decrypt unwraps an encrypted artifact into a fresh directory next to it
// and returns the path of the recovered dump file
func (ac *ArchiveCodec) Decrypt(archivePath, passphrase string) (string, error) {
	if !strings.HasSuffix(archivePath, ArchiveSuffix) {
		return "", NewFormatError(
			fmt.Sprintf("archive must have the %s extension", ArchiveSuffix), nil).
			WithContext("path", archivePath)
	}
	if _, err := os.Stat(archivePath); err != nil {
		return "", NewNotFoundError("archive file not found", err).WithContext("path", archivePath)
	}
	if passphrase == "" {
		return "", NewValidationError("decryption passphrase cannot be empty", nil)
	}

	extractDir, err := os.MkdirTemp(filepath.Dir(archivePath), "restore-")
	if err != nil {
		return "", NewStorageError("failed to create extraction directory", err)
	}

	dumpPath, err := ac.decryptInto(archivePath, passphrase, extractDir)
	if err != nil {
		os.RemoveAll(extractDir)
		return "", err
	}
	return dumpPath, nil
}

func (ac *ArchiveCodec) decryptInto(archivePath, passphrase, extractDir string) (string, error) {
	base := strings.TrimSuffix(filepath.Base(archivePath), ArchiveSuffix)
	tarGzPath := filepath.Join(extractDir, base+tarGzSuffix)
	if err := ac.decryptFile(archivePath, tarGzPath, passphrase); err != nil {
		return "", err
	}

	if err := ac.extractTarGz(tarGzPath, extractDir); err != nil {
		return "", err
	}
	ac.removeQuietly(tarGzPath)

	dumps, err := FindDumpFiles(extractDir)
	if err != nil {
		return "", err
	}
	if len(dumps) == 0 {
		return "", NewNotFoundError("archive contains no dump files", nil).
			WithContext("archive", archivePath)
	}
	return dumps[0], nil
}

// decryptFile reverses encryptFile. A wrong passphrase surfaces either as
// an immediate read error or as a stream integrity failure partway through,
// so both paths map to an encryption error naming the likely cause.
func (ac *ArchiveCodec) decryptFile(srcPath, dstPath, passphrase string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return NewStorageError("failed to open encrypted artifact", err).WithContext("path", srcPath)
	}
	defer src.Close()

	// The prompt must refuse a second invocation: returning the same
	// passphrase again would loop forever when it is wrong.
	failed := false
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if failed {
			return nil, NewEncryptionError("decryption failed, wrong passphrase?", nil)
		}
		failed = true
		return []byte(passphrase), nil
	}

	config := &packet.Config{DefaultCipher: packet.CipherAES256}
	message, err := openpgp.ReadMessage(src, nil, prompt, config)
	if err != nil {
		return NewEncryptionError("decryption failed, wrong passphrase?", err)
	}

	dst, err := os.Create(dstPath)
	if err != nil {
		return NewStorageError("failed to create decrypted archive", err).WithContext("path", dstPath)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, message.UnverifiedBody); err != nil {
		return NewEncryptionError("decryption failed, wrong passphrase?", err)
	}
	return dst.Close()
}

// extractTarGz unpacks every regular file in the archive flat into destDir.
// Entry names are reduced to their base name, which also neutralizes any
// path traversal a crafted archive might attempt.
func (ac *ArchiveCodec) extractTarGz(tarGzPath, destDir string) error {
	src, err := os.Open(tarGzPath)
	if err != nil {
		return NewStorageError("failed to open archive for extraction", err).WithContext("path", tarGzPath)
	}
	defer src.Close()

	gzReader, err := gzip.NewReader(src)
	if err != nil {
		return NewFormatError("archive is not a valid gzip stream", err).WithContext("path", tarGzPath)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return NewFormatError("archive is not a valid tar stream", err).WithContext("path", tarGzPath)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		outPath := filepath.Join(destDir, filepath.Base(header.Name))
		out, err := os.Create(outPath)
		if err != nil {
			return NewStorageError("failed to create extracted file", err).WithContext("path", outPath)
		}
		if _, err := io.Copy(out, tarReader); err != nil {
			out.Close()
			return NewStorageError("failed to extract file", err).WithContext("path", outPath)
		}
		if err := out.Close(); err != nil {
			return NewStorageError("failed to finalize extracted file", err).WithContext("path", outPath)
		}
	}
}

// FindDumpFiles lists the dump files in a directory, sorted by name
func FindDumpFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, NewStorageError("failed to list extracted files", err).WithContext("path", dir)
	}

	var dumps []string
	for _, entry := range entries {
		if entry.IsDir() || !IsDumpFile(entry.Name()) {
			continue
		}
		dumps = append(dumps, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(dumps)
	return dumps, nil
}

func (ac *ArchiveCodec) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		ac.logger.Warnf("Could not remove %s: %v", path, err)
	}
}
