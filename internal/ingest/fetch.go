package ingest

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/directory-cli/internal/resilience"
)

// Downloader copies a remote file to a local path and returns bytes written.
type Downloader interface {
	DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error)
}

// HTTPDownloader fetches sources over HTTP with per-host rate limiting and
// retries on transient failures.
type HTTPDownloader struct {
	client    *http.Client
	userAgent string
	limiter   *resilience.HostLimiter
	retry     resilience.Policy
}

// NewHTTPDownloader creates an HTTPDownloader. A nil limiter disables rate
// limiting.
func NewHTTPDownloader(timeout time.Duration, limiter *resilience.HostLimiter) *HTTPDownloader {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPDownloader{
		client:    &http.Client{Timeout: timeout},
		userAgent: "directory-cli/1.0",
		limiter:   limiter,
		retry: resilience.Policy{
			Label: "ingest download",
			Delay: resilience.Exponential(500*time.Millisecond, 30*time.Second),
		},
	}
}

// DownloadToFile fetches rawURL into dest.
func (d *HTTPDownloader) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	return resilience.RetryValue(ctx, d.retry, func(ctx context.Context) (int64, error) {
		if d.limiter != nil {
			if err := d.limiter.WaitURL(ctx, rawURL); err != nil {
				return 0, eris.Wrap(err, "ingest: rate limiter wait")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return 0, eris.Wrap(err, "ingest: create request")
		}
		req.Header.Set("User-Agent", d.userAgent)

		resp, err := d.client.Do(req)
		if err != nil {
			return 0, eris.Wrapf(err, "ingest: download %s", rawURL)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			err := eris.Errorf("ingest: download %s: status %d", rawURL, resp.StatusCode)
			return 0, resilience.ForStatus(err, resp.StatusCode)
		}
		return writeFile(dest, resp.Body)
	})
}

// FTPDownloader fetches sources from anonymous FTP servers.
type FTPDownloader struct {
	timeout time.Duration
}

// NewFTPDownloader creates an FTPDownloader.
func NewFTPDownloader(timeout time.Duration) *FTPDownloader {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FTPDownloader{timeout: timeout}
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host, filePath string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}
	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.New("ingest: empty path in ftp url")
	}
	return host, u.Path, nil
}

// DownloadToFile retrieves rawURL into dest.
func (d *FTPDownloader) DownloadToFile(ctx context.Context, rawURL, dest string) (int64, error) {
	host, filePath, err := parseFTPURL(rawURL)
	if err != nil {
		return 0, err
	}

	zap.L().Debug("ingest: ftp connecting", zap.String("host", host), zap.String("path", filePath))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(d.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return 0, eris.Wrap(err, "ingest: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return 0, eris.Wrap(err, "ingest: ftp login")
	}

	resp, err := conn.Retr(filePath)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: ftp retrieve")
	}
	defer resp.Close() //nolint:errcheck

	return writeFile(dest, resp)
}

func writeFile(dest string, r io.Reader) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, eris.Wrap(err, "ingest: create file")
	}
	defer f.Close() //nolint:errcheck

	n, err := io.Copy(f, r)
	if err != nil {
		return n, eris.Wrap(err, "ingest: write file")
	}
	return n, nil
}

// Opener turns source references (local paths, http(s) or ftp URLs, and
// zip archives of one of those) into Sources.
type Opener struct {
	HTTP Downloader
	FTP  Downloader
	// Dir receives downloads and extracted archives.
	Dir string
}

// Open resolves ref and returns the matching Source.
func (o *Opener) Open(ctx context.Context, ref string) (Source, error) {
	local, err := o.localize(ctx, ref)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(local), ".zip") {
		local, err = extractSource(local, o.Dir)
		if err != nil {
			return nil, err
		}
	}
	return NewFileSource(local)
}

func (o *Opener) localize(ctx context.Context, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return ref, nil
	}

	var d Downloader
	switch u.Scheme {
	case "http", "https":
		d = o.HTTP
	case "ftp":
		d = o.FTP
	case "file":
		return u.Path, nil
	default:
		return "", eris.Errorf("ingest: unsupported source scheme %q", u.Scheme)
	}
	if d == nil {
		return "", eris.Errorf("ingest: no downloader for %s", u.Scheme)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "source.csv"
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create download dir")
	}
	dest := filepath.Join(o.Dir, name)

	n, err := d.DownloadToFile(ctx, ref, dest)
	if err != nil {
		return "", err
	}
	zap.L().Info("ingest: downloaded source", zap.String("url", ref), zap.Int64("bytes", n))
	return dest, nil
}

// extractSource extracts the single supported data file of a zip archive.
func extractSource(zipPath, destDir string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "ingest: open archive")
	}
	defer r.Close() //nolint:errcheck

	var files []*zip.File
	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(f.Name)) {
		case ".csv", ".tsv", ".txt", ".xlsx", ".json":
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return "", eris.Errorf("ingest: expected exactly 1 data file in %s, got %d", zipPath, len(files))
	}
	return extractEntry(files[0], destDir)
}

func extractEntry(f *zip.File, destDir string) (string, error) {
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("ingest: illegal path %q in archive", f.Name)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "ingest: open archive entry")
	}
	defer rc.Close() //nolint:errcheck

	if _, err := writeFile(destPath, rc); err != nil {
		return "", err
	}
	return destPath, nil
}
