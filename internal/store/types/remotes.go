package types

// Backend type tags a Remote can carry.
const (
	RemoteLocal  = "local"
	RemoteSFTP   = "sftp"
	RemoteFTP    = "ftp"
	RemoteSMB    = "smb"
	RemoteS3     = "s3"
	RemoteHTTP   = "http"
	RemoteWebDAV = "webdav"
)

// ValidRemoteTypes lists every backend the daemon can drive for us.
var ValidRemoteTypes = map[string]bool{
	RemoteLocal:  true,
	RemoteSFTP:   true,
	RemoteFTP:    true,
	RemoteSMB:    true,
	RemoteS3:     true,
	RemoteHTTP:   true,
	RemoteWebDAV: true,
}

type Remote struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	// Config carries backend-specific keys: host, port, path, bucket, share,
	// url, provider, endpoint, region.
	Config       map[string]string `json:"config"`
	CredentialID *int64            `json:"credential_id,omitempty"`
}

// Credential rows store the payload encrypted. Data is only ever decrypted on
// demand into a flat key-value map (user, password, access keys, private key,
// passphrase, endpoint, region).
type Credential struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"-"`
}

// CredentialData is the decrypted form of Credential.Data.
type CredentialData map[string]string

// User returns the user name under either of its accepted keys.
func (c CredentialData) User() string {
	if u := c["user"]; u != "" {
		return u
	}
	return c["username"]
}
