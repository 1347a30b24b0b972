/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"golang.org/x/oauth2"
)

const tokenUser = "x-access-token"

// PushWithCredentials pushes the checked out branch to the same branch on
// origin. The token from ts is embedded in the origin URL only for the
// duration of the push; the plain URL is restored on every exit path.
func (c *Clone) PushWithCredentials(ctx context.Context, ts oauth2.TokenSource) (err error) {
	log := clog.FromContext(ctx)

	current, err := c.RemoteURL()
	if err != nil {
		return err
	}
	plain := stripCredentials(current)

	token, err := ts.Token()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	defer func() {
		err = redact(err, token.AccessToken)
	}()
	if err := c.SetRemoteURL(authenticatedURL(plain, token.AccessToken)); err != nil {
		return err
	}
	defer func() {
		if rerr := c.SetRemoteURL(plain); rerr != nil {
			log.Errorf("Restoring origin URL: %v", rerr)
			err = errors.Join(err, rerr)
		}
	}()

	ref := "refs/heads/" + c.branch
	log.Infof("Pushing %s to %s/%s", ref, c.owner, c.name)
	if err := c.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: originName,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref + ":" + ref)},
	}); err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			log.Infof("Branch %s already up to date", c.branch)
			return nil
		}
		return fmt.Errorf("pushing %s: %w", c.branch, err)
	}
	return nil
}

// authenticatedURL embeds token into an http(s) remote URL. Other remotes
// are returned unchanged.
func authenticatedURL(remote, token string) string {
	u, err := url.Parse(remote)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") {
		return remote
	}
	u.User = url.UserPassword(tokenUser, token)
	return u.String()
}

// redactedError hides a secret in the text of err. The transport embeds the
// request URL, credentials included, in some of its errors.
type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.secret, "***")
}

func (e *redactedError) Unwrap() error { return e.err }

func redact(err error, secret string) error {
	if err == nil || secret == "" {
		return err
	}
	return &redactedError{err: err, secret: secret}
}

func stripCredentials(remote string) string {
	u, err := url.Parse(remote)
	if err != nil || u.User == nil {
		return remote
	}
	u.User = nil
	return u.String()
}
