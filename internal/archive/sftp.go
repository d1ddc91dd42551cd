package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Config points at the SFTP host where received SCORM packages are archived.
// An empty Host disables archival.
type Config struct {
	Host      string
	Port      int
	User      string
	Pass      string
	RemoteDir string
}

func (c Config) Enabled() bool { return c.Host != "" }

// Store writes content to RemoteDir/name on the archive host. The dial is
// bounded by ctx since ssh.Dial has no context support of its own.
func Store(ctx context.Context, cfg Config, name string, content []byte) error {
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return fmt.Errorf("archive: missing sftp host/user/pass")
	}
	if cfg.Port <= 0 {
		cfg.Port = 22
	}
	if cfg.RemoteDir == "" {
		cfg.RemoteDir = "/"
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		// TODO: known_hosts verification once the archive host key is pinned
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         20 * time.Second,
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		// close a late-succeeding connection instead of leaking it
		go func() {
			if r := <-ch; r.err == nil {
				r.client.Close()
			}
		}()
		return fmt.Errorf("archive: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return fmt.Errorf("archive: dial error: %w", r.err)
		}
		sshClient = r.client
	}
	defer sshClient.Close()

	sftpCli, err := sftp.NewClient(sshClient)
	if err != nil {
		return fmt.Errorf("archive: new sftp client: %w", err)
	}
	defer sftpCli.Close()

	if err := sftpCli.MkdirAll(cfg.RemoteDir); err != nil {
		return fmt.Errorf("archive: mkdir %s: %w", cfg.RemoteDir, err)
	}

	remotePath := path.Join(cfg.RemoteDir, name)
	dst, err := sftpCli.Create(remotePath)
	if err != nil {
		return fmt.Errorf("archive: create %s: %w", remotePath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("archive: write %s: %w", remotePath, err)
	}

	return nil
}
