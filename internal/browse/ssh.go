package browse

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/grabarr/grabarr/internal/store/types"
)

// sshLister keeps one SSH connection open for the life of the session and
// lists directories by running ls on the remote shell. No file-transfer
// sub-channel is opened; some hosts rate-limit those separately.
type sshLister struct {
	client *ssh.Client
}

func newSSHLister(config map[string]string, cred types.CredentialData) (*sshLister, error) {
	var auth []ssh.AuthMethod

	if key := cred["private_key"]; key != "" {
		var signer ssh.Signer
		var err error
		if passphrase := cred["passphrase"]; passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase([]byte(key), []byte(passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(key))
		}
		if err != nil {
			return nil, fmt.Errorf("newSSHLister: unable to parse private key -> %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	if password := cred["password"]; password != "" {
		auth = append(auth, ssh.Password(password))
		auth = append(auth, ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range questions {
				answers[i] = password
			}
			return answers, nil
		}))
	}

	if len(auth) == 0 {
		return nil, fmt.Errorf("newSSHLister: no authentication methods configured")
	}

	port := config["port"]
	if port == "" {
		port = "22"
	}

	clientConfig := &ssh.ClientConfig{
		User:            cred.User(),
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", fmt.Sprintf("%s:%s", config["host"], port), clientConfig)
	if err != nil {
		return nil, fmt.Errorf("newSSHLister: failed to dial -> %w", err)
	}
	return &sshLister{client: client}, nil
}

func (l *sshLister) List(ctx context.Context, full, rel string) ([]types.BrowseEntry, error) {
	session, err := l.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer session.Close()

	cmd := fmt.Sprintf("ls -lA --time-style=long-iso -- %s", shellQuote(full))
	output, err := session.CombinedOutput(cmd)
	if err != nil {
		return nil, fmt.Errorf("List: %s -> %w", strings.TrimSpace(string(output)), err)
	}
	return parseListing(full, string(output)), nil
}

func (l *sshLister) Close(ctx context.Context) error {
	return l.client.Close()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// parseListing turns long-iso ls output into entries. Lines that do not look
// like listing rows, including the leading total, are skipped.
func parseListing(dir, output string) []types.BrowseEntry {
	var entries []types.BrowseEntry

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "total ") {
			continue
		}

		// perms links owner group size date time name...
		fields := strings.Fields(line)
		if len(fields) < 8 {
			continue
		}

		mode := fields[0]
		size, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			continue
		}

		name := strings.Join(fields[7:], " ")
		if mode[0] == 'l' {
			if idx := strings.Index(name, " -> "); idx >= 0 {
				name = name[:idx]
			}
		}

		modTime := ""
		if t, err := time.Parse("2006-01-02 15:04", fields[5]+" "+fields[6]); err == nil {
			modTime = t.UTC().Format(time.RFC3339)
		}

		isDir := mode[0] == 'd'
		entry := types.BrowseEntry{
			Path:    strings.TrimRight(dir, "/") + "/" + name,
			Name:    name,
			Size:    size,
			ModTime: modTime,
			IsDir:   isDir,
		}
		if isDir {
			entry.Size = 0
			entry.MimeType = "inode/directory"
		}
		entries = append(entries, entry)
	}
	return entries
}
