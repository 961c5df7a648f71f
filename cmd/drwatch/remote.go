package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/loykin/drwatch/internal/auth"
	"github.com/loykin/drwatch/pkg/client"
)

const waitPollInterval = 500 * time.Millisecond

// Confirm answers the prompt of a run using the HTTP confirmation source.
func (c command) Confirm(ctx context.Context, f ConfirmFlags) error {
	password := f.Password
	if password == "" {
		password = os.Getenv("DRWATCH_OPERATOR_PASSWORD")
	}
	cl, err := client.New(client.Config{
		BaseURL:  f.Server,
		Username: f.Username,
		Password: password,
		CACert:   f.CACert,
		Insecure: f.Insecure,
	})
	if err != nil {
		return err
	}
	if f.Username != "" {
		if _, err := cl.Login(ctx); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	}

	st, err := cl.Status(ctx)
	if err != nil {
		return err
	}
	for f.Wait && st.Prompt == "" {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitPollInterval):
		}
		if st, err = cl.Status(ctx); err != nil {
			return err
		}
	}
	if st.Prompt != "" {
		_, _ = fmt.Fprintf(c.out, "%s%s\n", st.Prompt, f.Answer)
	}

	if err := cl.Confirm(ctx, f.Answer); err != nil {
		if errors.Is(err, client.ErrNotPending) {
			return fmt.Errorf("drwatch at %s is in state %s and not waiting for confirmation", f.Server, st.State)
		}
		return err
	}
	_, _ = fmt.Fprintln(c.out, "answer submitted")
	return nil
}

// HashPassword prints a bcrypt hash; with no --password the first line of
// stdin is used so the secret stays out of shell history.
func (c command) HashPassword(f HashPasswordFlags) error {
	pw := f.Password
	if pw == "" {
		sc := bufio.NewScanner(c.in)
		if sc.Scan() {
			pw = strings.TrimRight(sc.Text(), "\r")
		}
		if err := sc.Err(); err != nil {
			return err
		}
	}
	h, err := auth.HashPassword(pw)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.out, h)
	return nil
}
