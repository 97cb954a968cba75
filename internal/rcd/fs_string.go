package rcd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grabarr/grabarr/internal/store/constants"
	"github.com/grabarr/grabarr/internal/store/types"
)

var ErrUnsupportedBackend = errors.New("unsupported remote type")

// S3Tuning mirrors the chunked-transfer knobs the resolver appends to s3
// addresses. The daemon's backend drivers only honor these in the connection
// string, never in the transfer parameters.
type S3Tuning struct {
	ChunkSize         string
	UploadConcurrency int
}

// Resolver builds backend addresses for the daemon. Secrets pass through the
// daemon's core/obscure before they are embedded, never in plain text.
type Resolver struct {
	rc Caller
	s3 func() S3Tuning
}

func NewResolver(rc Caller, s3 func() S3Tuning) *Resolver {
	if s3 == nil {
		s3 = func() S3Tuning {
			return S3Tuning{
				ChunkSize:         constants.DefaultS3ChunkSize,
				UploadConcurrency: constants.DefaultS3UploadConcurrency,
			}
		}
	}
	return &Resolver{rc: rc, s3: s3}
}

func (r *Resolver) obscure(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", nil
	}
	res, err := r.rc.Call(ctx, "core/obscure", map[string]any{"clear": password})
	if err != nil {
		return "", fmt.Errorf("obscure: %w", err)
	}
	obscured, _ := res["obscured"].(string)
	return obscured, nil
}

// FsString builds the daemon address for one remote, embedding host, port
// (type-specific default), user and obscured password, plus the backend's
// path/bucket/share composition.
func (r *Resolver) FsString(ctx context.Context, remote types.Remote, cred types.CredentialData) (string, error) {
	switch remote.Type {
	case types.RemoteLocal:
		path := remote.Config["path"]
		if path == "" {
			path = "/"
		}
		return path, nil

	case types.RemoteS3:
		return r.s3String(remote, cred), nil

	case types.RemoteHTTP:
		url := remote.Config["url"]
		if url == "" {
			url = "http://" + remote.Config["host"]
		}
		return fmt.Sprintf(":http,url=%q:", url), nil

	case types.RemoteWebDAV:
		return r.webdavString(ctx, remote, cred)

	case types.RemoteSFTP, types.RemoteFTP, types.RemoteSMB:
		return r.hostString(ctx, remote, cred)
	}

	return "", fmt.Errorf("%w: %s", ErrUnsupportedBackend, remote.Type)
}

func (r *Resolver) s3String(remote types.Remote, cred types.CredentialData) string {
	bucket := remote.Config["bucket"]
	if cred == nil {
		return fmt.Sprintf(":s3,env_auth=false:%s", bucket)
	}

	provider := remote.Config["provider"]
	if provider == "" {
		provider = "Minio"
	}

	tuning := r.s3()
	params := []string{
		"provider=" + provider,
		fmt.Sprintf("access_key_id='%s'", cred["access_key_id"]),
		fmt.Sprintf("secret_access_key='%s'", cred["secret_access_key"]),
	}
	if endpoint := firstNonEmpty(cred["endpoint"], remote.Config["endpoint"]); endpoint != "" {
		params = append(params, fmt.Sprintf("endpoint='%s'", endpoint))
	}
	if region := firstNonEmpty(cred["region"], remote.Config["region"]); region != "" {
		params = append(params, fmt.Sprintf("region='%s'", region))
	}
	if provider != "AWS" {
		params = append(params, "s3_force_path_style='true'")
	}
	params = append(params,
		fmt.Sprintf("chunk_size='%s'", tuning.ChunkSize),
		fmt.Sprintf("upload_concurrency='%d'", tuning.UploadConcurrency),
	)

	return fmt.Sprintf(":s3,%s:%s", strings.Join(params, ","), bucket)
}

func (r *Resolver) webdavString(ctx context.Context, remote types.Remote, cred types.CredentialData) (string, error) {
	params := []string{fmt.Sprintf("url=%q", remote.Config["url"])}
	if vendor := remote.Config["vendor"]; vendor != "" {
		params = append(params, fmt.Sprintf("vendor=%q", vendor))
	}
	if cred != nil {
		if user := cred.User(); user != "" {
			params = append(params, fmt.Sprintf("user=%q", user))
		}
		obscured, err := r.obscure(ctx, cred["password"])
		if err != nil {
			return "", err
		}
		if obscured != "" {
			params = append(params, fmt.Sprintf("pass=%q", obscured))
		}
	}

	path := strings.TrimPrefix(remote.Config["path"], "/")
	return fmt.Sprintf(":webdav,%s:%s", strings.Join(params, ","), path), nil
}

func (r *Resolver) hostString(ctx context.Context, remote types.Remote, cred types.CredentialData) (string, error) {
	params := []string{fmt.Sprintf("host=%q", remote.Config["host"])}

	port := remote.Config["port"]
	if port == "" {
		port = constants.DefaultPorts[remote.Type]
	}
	params = append(params, fmt.Sprintf("port=%q", port))

	if cred != nil {
		if user := cred.User(); user != "" {
			params = append(params, fmt.Sprintf("user=%q", user))
		}
		obscured, err := r.obscure(ctx, cred["password"])
		if err != nil {
			return "", err
		}
		if obscured != "" {
			params = append(params, fmt.Sprintf("pass=%q", obscured))
		}
	}

	base := fmt.Sprintf(":%s,%s:", remote.Type, strings.Join(params, ","))

	if remote.Type == types.RemoteSMB {
		share := strings.Trim(remote.Config["share"], "/")
		path := strings.Trim(remote.Config["path"], "/")
		if path != "" {
			return base + share + "/" + path, nil
		}
		return base + share, nil
	}

	path := remote.Config["path"]
	if path == "" {
		path = "/"
	}
	return base + path, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
