package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"
	"time"
)

type SessionsCmd struct {
	ServerFlags
}

func (c *SessionsCmd) Run(ctx context.Context, globals *Globals) error {
	bearer, err := c.bearer()
	if err != nil {
		return err
	}

	var sessions []sessionPayload
	if err := newAPIClient(c.Server, bearer).do(ctx, http.MethodGet, "/v1/sessions", nil, &sessions); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SESSION\tLAST ACTIVITY\tEXPIRES\tCLIENT")
	for _, s := range sessions {
		client := s.UserAgent
		if s.ClientIP != "" {
			client = fmt.Sprintf("%s (%s)", s.UserAgent, s.ClientIP)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			s.SessionID,
			s.LastActivityAt.Local().Format(time.RFC3339),
			s.ExpiresAt.Local().Format(time.RFC3339),
			client,
		)
	}
	return w.Flush()
}
