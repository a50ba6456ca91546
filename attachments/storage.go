package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"hermannm.dev/devlog/log"
	"hermannm.dev/gridbase/cache"
	"hermannm.dev/gridbase/config"
	"hermannm.dev/gridbase/db"
	"hermannm.dev/wrap"
)

const (
	UploadPath = "/api/attachments/upload"
	ReadPath   = "/api/attachments/read"

	PublicBucket  = "public"
	PrivateBucket = "private"
)

// Stores uploaded files on the local filesystem, under <local path>/<bucket>/<path>.
//
// Uploads go through a presigned token: the client first asks for a signature describing the
// file it will send, then uploads the file to the returned URL. Uploaded files are read back
// through signed read tokens.
type LocalStorage struct {
	storageDir    string
	temporaryDir  string
	tokenExpireIn time.Duration
	urlExpireIn   time.Duration
	encryptionKey []byte
	publicOrigin  string

	signatures gocache.CacheInterface[signatureMeta]
	uploads    gocache.CacheInterface[UploadMeta]
}

type signatureMeta struct {
	Bucket        string
	Path          string
	ContentType   string
	ContentLength int64
	ExpiresDate   time.Time
}

type UploadMeta struct {
	Bucket   string `json:"bucket"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
	Hash     string `json:"hash"`
}

func NewLocalStorage(conf config.Storage) (*LocalStorage, error) {
	if conf.EncryptionKey == "" {
		return nil, errors.New("storage encryption key is required")
	}

	storageDir, err := filepath.Abs(conf.LocalPath)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to resolve storage path '%s'", conf.LocalPath)
	}
	temporaryDir, err := filepath.Abs(conf.TemporaryDir)
	if err != nil {
		return nil, wrap.Errorf(err, "failed to resolve temporary dir '%s'", conf.TemporaryDir)
	}

	for _, dir := range []string{storageDir, temporaryDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, wrap.Errorf(err, "failed to create directory '%s'", dir)
		}
	}

	return &LocalStorage{
		storageDir:    storageDir,
		temporaryDir:  temporaryDir,
		tokenExpireIn: conf.TokenExpireIn,
		urlExpireIn:   conf.URLExpireIn,
		encryptionKey: []byte(conf.EncryptionKey),
		publicOrigin:  strings.TrimSuffix(conf.PublicOrigin, "/"),
		signatures:    cache.NewCache[signatureMeta]("attachment-signatures", conf.TokenExpireIn),
		uploads:       cache.NewCache[UploadMeta]("attachment-uploads", conf.TokenExpireIn),
	}, nil
}

func signatureKey(token string) string {
	return "attachment:local-signature:" + token
}

func uploadKey(token string) string {
	return "attachment:upload:" + token
}

type PresignParams struct {
	ContentType   string `json:"contentType"`
	ContentLength int64  `json:"contentLength"`
	// Used as the stored file name if set, so that identical files share a path.
	Hash string `json:"hash,omitempty"`
	// Overrides the configured token lifetime if non-zero.
	ExpiresIn time.Duration `json:"-"`
}

type PresignResult struct {
	Token          string            `json:"token"`
	Path           string            `json:"path"`
	URL            string            `json:"url"`
	UploadMethod   string            `json:"uploadMethod"`
	RequestHeaders map[string]string `json:"requestHeaders"`
}

func (storage *LocalStorage) Presigned(
	ctx context.Context,
	bucket string,
	dir string,
	params PresignParams,
) (PresignResult, error) {
	token := newToken()
	fileName := params.Hash
	if fileName == "" {
		fileName = token
	}
	filePath := path.Join(dir, fileName)

	expiresIn := params.ExpiresIn
	if expiresIn == 0 {
		expiresIn = storage.tokenExpireIn
	}

	meta := signatureMeta{
		Bucket:        bucket,
		Path:          filePath,
		ContentType:   params.ContentType,
		ContentLength: params.ContentLength,
		ExpiresDate:   time.Now().Add(expiresIn),
	}
	if err := storage.signatures.Set(
		ctx,
		signatureKey(token),
		meta,
		store.WithExpiration(expiresIn),
	); err != nil {
		return PresignResult{}, wrap.Error(err, "failed to store upload signature")
	}

	headers := map[string]string{"Content-Type": params.ContentType}
	if params.ContentLength > 0 {
		headers["Content-Length"] = fmt.Sprint(params.ContentLength)
	}

	return PresignResult{
		Token:          token,
		Path:           filePath,
		URL:            UploadPath + "/" + token,
		UploadMethod:   "PUT",
		RequestHeaders: headers,
	}, nil
}

// A file received from the client, saved to the temporary directory.
type LocalFileUpload struct {
	Path     string
	Size     int64
	MimeType string
}

// Checks an uploaded file against the signature its token was issued for.
func (storage *LocalStorage) ValidateToken(
	ctx context.Context,
	token string,
	file LocalFileUpload,
) error {
	_, err := storage.validateToken(ctx, token, file)
	return err
}

func (storage *LocalStorage) validateToken(
	ctx context.Context,
	token string,
	file LocalFileUpload,
) (signatureMeta, error) {
	meta, err := storage.signatures.Get(ctx, signatureKey(token))
	if err != nil {
		return signatureMeta{}, ErrInvalidToken
	}
	if time.Now().After(meta.ExpiresDate) {
		return signatureMeta{}, ErrTokenExpired
	}
	if meta.ContentLength > 0 && meta.ContentLength != file.Size {
		return signatureMeta{}, &SizeMismatchError{Expected: meta.ContentLength, Actual: file.Size}
	}
	if meta.ContentType != "" && meta.ContentType != file.MimeType {
		return signatureMeta{}, &MimeTypeError{Expected: meta.ContentType, Actual: file.MimeType}
	}
	return meta, nil
}

func (storage *LocalStorage) SaveTemporaryFile(
	reader io.Reader,
	mimeType string,
) (LocalFileUpload, error) {
	file, err := os.CreateTemp(storage.temporaryDir, "upload-*")
	if err != nil {
		return LocalFileUpload{}, wrap.Error(err, "failed to create temporary file")
	}
	defer file.Close()

	size, err := io.Copy(file, reader)
	if err != nil {
		os.Remove(file.Name())
		return LocalFileUpload{}, wrap.Error(err, "failed to write temporary file")
	}

	return LocalFileUpload{Path: file.Name(), Size: size, MimeType: mimeType}, nil
}

// Moves the file at filePath into storage under the given bucket-relative path, and returns that
// path.
func (storage *LocalStorage) Save(filePath string, rename string) (string, error) {
	target, err := storage.resolve(rename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", wrap.Errorf(err, "failed to create directory for '%s'", rename)
	}

	if err := os.Rename(filePath, target); err != nil {
		// Rename fails across filesystems, so fall back to copying.
		if err := copyFile(filePath, target); err != nil {
			return "", wrap.Errorf(err, "failed to save file to '%s'", rename)
		}
		os.Remove(filePath)
	}

	return rename, nil
}

func copyFile(source string, target string) error {
	sourceFile, err := os.Open(source)
	if err != nil {
		return err
	}
	defer sourceFile.Close()

	targetFile, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(targetFile, sourceFile); err != nil {
		targetFile.Close()
		return err
	}
	return targetFile.Close()
}

// The caller must close the returned file.
func (storage *LocalStorage) Read(path string) (*os.File, error) {
	fullPath, err := storage.resolve(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, wrap.Errorf(err, "failed to open file '%s'", path)
	}
	return file, nil
}

func (storage *LocalStorage) LastModifiedTime(path string) (time.Time, bool) {
	fullPath, err := storage.resolve(path)
	if err != nil {
		return time.Time{}, false
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// Returns the hex-encoded SHA-256 of the stored file.
func (storage *LocalStorage) Hash(path string) (string, error) {
	file, err := storage.Read(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", wrap.Errorf(err, "failed to hash file '%s'", path)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Returns the pixel dimensions of a stored image.
func (storage *LocalStorage) FileMeta(path string) (width int, height int, err error) {
	file, err := storage.Read(path)
	if err != nil {
		return 0, 0, err
	}
	defer file.Close()

	imageConfig, _, err := image.DecodeConfig(file)
	if err != nil {
		return 0, 0, wrap.Errorf(err, "failed to decode image '%s'", path)
	}
	return imageConfig.Width, imageConfig.Height, nil
}

// Receives the file for a presigned upload token, and moves it to the path the token was signed
// for.
func (storage *LocalStorage) Upload(
	ctx context.Context,
	token string,
	reader io.Reader,
	mimeType string,
) (UploadMeta, error) {
	file, err := storage.SaveTemporaryFile(reader, mimeType)
	if err != nil {
		return UploadMeta{}, err
	}

	signature, err := storage.validateToken(ctx, token, file)
	if err != nil {
		os.Remove(file.Path)
		return UploadMeta{}, err
	}

	storedPath, err := storage.Save(file.Path, path.Join(signature.Bucket, signature.Path))
	if err != nil {
		os.Remove(file.Path)
		return UploadMeta{}, err
	}

	hash, err := storage.Hash(storedPath)
	if err != nil {
		return UploadMeta{}, err
	}

	meta := UploadMeta{
		Bucket:   signature.Bucket,
		Path:     signature.Path,
		Size:     file.Size,
		MimeType: mimeType,
		Hash:     hash,
	}
	if err := storage.uploads.Set(ctx, uploadKey(token), meta); err != nil {
		return UploadMeta{}, wrap.Error(err, "failed to store upload metadata")
	}
	if err := storage.signatures.Delete(ctx, signatureKey(token)); err != nil {
		log.Warn("failed to delete used upload signature", slog.String("error", err.Error()))
	}

	log.Debug(
		"stored uploaded file",
		slog.String("bucket", meta.Bucket),
		slog.String("path", meta.Path),
		slog.Int64("size", meta.Size),
	)
	return meta, nil
}

type ObjectMeta struct {
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimetype"`
	URL      string `json:"url"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

// Returns metadata for a completed upload, with a non-expiring read URL.
func (storage *LocalStorage) GetObject(
	ctx context.Context,
	bucket string,
	path string,
	token string,
) (ObjectMeta, error) {
	upload, err := storage.uploads.Get(ctx, uploadKey(token))
	if err != nil {
		return ObjectMeta{}, ErrInvalidToken
	}
	if upload.Bucket != bucket || upload.Path != path {
		return ObjectMeta{}, ErrInvalidToken
	}

	readURL, err := storage.PreviewURL(bucket, path, -1, nil)
	if err != nil {
		return ObjectMeta{}, err
	}

	object := ObjectMeta{
		Hash:     upload.Hash,
		Size:     upload.Size,
		MimeType: upload.MimeType,
		URL:      readURL,
	}
	if strings.HasPrefix(upload.MimeType, "image/") {
		width, height, err := storage.FileMeta(joinBucket(bucket, path))
		if err != nil {
			log.Warn(
				"failed to read image dimensions",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		} else {
			object.Width = width
			object.Height = height
		}
	}
	return object, nil
}

// Builds the attachment cell value for a completed upload.
func (storage *LocalStorage) ResolveAttachment(
	ctx context.Context,
	token string,
) (db.Attachment, error) {
	upload, err := storage.uploads.Get(ctx, uploadKey(token))
	if err != nil {
		return db.Attachment{}, ErrInvalidToken
	}

	object, err := storage.GetObject(ctx, upload.Bucket, upload.Path, token)
	if err != nil {
		return db.Attachment{}, err
	}

	return db.Attachment{
		ID:       db.NewAttachmentID(),
		Name:     path.Base(upload.Path),
		Token:    token,
		Path:     joinBucket(upload.Bucket, upload.Path),
		Size:     object.Size,
		MimeType: object.MimeType,
		Hash:     object.Hash,
		Width:    object.Width,
		Height:   object.Height,
	}, nil
}

type readClaims struct {
	RespHeaders map[string]string `json:"respHeaders,omitempty"`
	jwt.RegisteredClaims
}

// Returns an absolute URL for reading the given file. A negative expiresIn gives a URL that never
// expires, and zero uses the configured default.
func (storage *LocalStorage) PreviewURL(
	bucket string,
	path string,
	expiresIn time.Duration,
	respHeaders map[string]string,
) (string, error) {
	if expiresIn == 0 {
		expiresIn = storage.urlExpireIn
	}

	claims := readClaims{
		RespHeaders:      respHeaders,
		RegisteredClaims: jwt.RegisteredClaims{Subject: joinBucket(bucket, path)},
	}
	if expiresIn > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(expiresIn))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString(storage.encryptionKey)
	if err != nil {
		return "", wrap.Error(err, "failed to sign read token")
	}

	return fmt.Sprintf(
		"%s%s/%s?token=%s",
		storage.publicOrigin,
		ReadPath,
		joinBucket(bucket, path),
		url.QueryEscape(token),
	), nil
}

// Returns the response headers embedded in a read token. The token is only valid for the file it
// was issued for.
func (storage *LocalStorage) VerifyReadToken(
	token string,
	bucket string,
	path string,
) (map[string]string, error) {
	var claims readClaims
	_, err := jwt.ParseWithClaims(
		token,
		&claims,
		func(*jwt.Token) (any, error) { return storage.encryptionKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithSubject(joinBucket(bucket, path)),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims.RespHeaders, nil
}

// Moves a local file into storage, and returns its read path.
func (storage *LocalStorage) UploadFileWithPath(
	bucket string,
	path string,
	filePath string,
) (string, error) {
	storedPath, err := storage.Save(filePath, joinBucket(bucket, path))
	if err != nil {
		return "", err
	}
	return ReadPath + "/" + storedPath, nil
}

// Resolves a storage-relative path, rejecting paths that escape the storage directory.
func (storage *LocalStorage) resolve(relativePath string) (string, error) {
	fullPath := filepath.Join(storage.storageDir, filepath.FromSlash(relativePath))
	relative, err := filepath.Rel(storage.storageDir, fullPath)
	if err != nil || relative == "." || strings.HasPrefix(relative, "..") {
		return "", &InvalidPathError{Path: relativePath}
	}
	return fullPath, nil
}

func joinBucket(bucket string, filePath string) string {
	return path.Join(bucket, filePath)
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
