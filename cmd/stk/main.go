package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	cl "stockwatch/internal/cli"
	"stockwatch/internal/config"
	"stockwatch/internal/game"
	"stockwatch/internal/quotes"
	"stockwatch/internal/syncq"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const defaultPageSize = 20

func main() {
	config.LoadDotEnv()
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "stk",
		Short:        "Stock watch CLI client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newSignupCmd(&apiBase),
		newLoginCmd(&apiBase),
		newLogoutCmd(),
		newSearchCmd(&apiBase),
		newSectorCmd(&apiBase),
		newSectorsCmd(&apiBase),
		newFavoritesCmd(&apiBase),
		newFavCmd(&apiBase),
		newTradeCmd(&apiBase, game.SideBuy),
		newTradeCmd(&apiBase, game.SideSell),
		newLeadersCmd(&apiBase),
		newStatusCmd(&apiBase),
		newSyncCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required: %w", err)
	}
	return sess, nil
}

func newSignupCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			username, err := promptOptional("Username (optional)")
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Signup(ctx, email, password, username)
			if err != nil {
				return err
			}
			if strings.TrimSpace(session.AccessToken) == "" {
				printWarn("Signup created. Verify email, then run `stk login`.")
				return nil
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
				DisplayName:  username,
			}); err != nil {
				return err
			}
			printSuccess("Signup complete. Session saved.")
			return nil
		},
	}
}

func newLoginCmd(apiBase *string) *cobra.Command {
	var devName string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if devName = strings.TrimSpace(devName); devName != "" {
				if err := cl.SaveSession(cl.Session{AccessToken: devName, DisplayName: devName}); err != nil {
					return err
				}
				printSuccess(fmt.Sprintf("Playing as %s.", devName))
				return nil
			}

			email, err := promptRequired("Email")
			if err != nil {
				return err
			}
			password, err := promptPassword("Password")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			session, err := newClient(apiBase).Login(ctx, email, password)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(cl.Session{
				AccessToken:  session.AccessToken,
				RefreshToken: session.RefreshToken,
				Email:        session.User.Email,
				UserID:       session.User.ID,
				DisplayName:  session.User.UserMetadata.Username,
			}); err != nil {
				return err
			}
			printSuccess("Login successful.")
			return nil
		},
	}
	cmd.Flags().StringVar(&devName, "dev", "", "play as NAME against a server running in dev auth mode")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func addPageFlags(cmd *cobra.Command, start, length *int) {
	cmd.Flags().IntVar(start, "start", 0, "index of the first row")
	cmd.Flags().IntVar(length, "length", defaultPageSize, "rows per page")
}

func fetchQuotes(cmd *cobra.Command, apiBase *string, req game.StockRequest) (game.StockResponse, error) {
	sess, err := requireSession()
	if err != nil {
		return game.StockResponse{}, err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return newClient(apiBase).Quotes(ctx, sess.AccessToken, req)
}

func newSearchCmd(apiBase *string) *cobra.Command {
	var start, length int
	cmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Search tickers by prefix, regex or company name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			resp, err := fetchQuotes(cmd, apiBase, game.StockRequest{
				SearchQuery: query,
				SearchRange: quotes.Range{Start: start, Length: length},
			})
			if err != nil {
				return err
			}
			renderAccount(resp)
			renderStockList("search: "+query, resp.Search)
			return nil
		},
	}
	addPageFlags(cmd, &start, &length)
	return cmd
}

func newSectorCmd(apiBase *string) *cobra.Command {
	var start, length int
	cmd := &cobra.Command{
		Use:   "sector NAME",
		Short: "List quotes for a sector",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			resp, err := fetchQuotes(cmd, apiBase, game.StockRequest{
				SectorName:  name,
				SectorRange: quotes.Range{Start: start, Length: length},
			})
			if err != nil {
				return err
			}
			renderAccount(resp)
			renderStockList(name, resp.Sector)
			return nil
		},
	}
	addPageFlags(cmd, &start, &length)
	return cmd
}

func newSectorsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sectors",
		Short: "List sector names",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			sectors, err := newClient(apiBase).Sectors(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			accent.Println("\n== SECTORS ==")
			for _, s := range sectors {
				fmt.Println("  " + s)
			}
			fmt.Println()
			return nil
		},
	}
}

func newFavoritesCmd(apiBase *string) *cobra.Command {
	var start, length int
	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "Show quotes for your favorite tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := fetchQuotes(cmd, apiBase, game.StockRequest{
				FavoritesRange: quotes.Range{Start: start, Length: length},
			})
			if err != nil {
				return err
			}
			renderAccount(resp)
			renderStockList("favorites", resp.Favorites)
			return nil
		},
	}
	addPageFlags(cmd, &start, &length)
	return cmd
}

func newFavCmd(apiBase *string) *cobra.Command {
	fav := &cobra.Command{
		Use:   "fav",
		Short: "Add or remove a favorite ticker",
	}
	fav.AddCommand(&cobra.Command{
		Use:   "add TICKER",
		Short: "Add a favorite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return favoriteCommand(cmd, apiBase, true, args[0])
		},
	})
	fav.AddCommand(&cobra.Command{
		Use:     "rm TICKER",
		Aliases: []string{"remove"},
		Short:   "Remove a favorite",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return favoriteCommand(cmd, apiBase, false, args[0])
		},
	})
	return fav
}

func favoriteCommand(cmd *cobra.Command, apiBase *string, add bool, raw string) error {
	sess, err := requireSession()
	if err != nil {
		return err
	}
	ticker, err := parseTicker(raw)
	if err != nil {
		return err
	}
	idem := uuid.NewString()
	client := newClient(apiBase)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	queued := syncq.Command{Method: http.MethodPost, Path: "/v1/favorites", Body: map[string]any{"ticker": ticker}, IdempotencyKey: idem}
	var out map[string]any
	if add {
		out, err = client.AddFavorite(ctx, sess.AccessToken, ticker, idem)
	} else {
		queued = syncq.Command{Method: http.MethodDelete, Path: "/v1/favorites/" + ticker, IdempotencyKey: idem}
		out, err = client.RemoveFavorite(ctx, sess.AccessToken, ticker, idem)
	}
	if err != nil {
		return queueOnNetworkError(err, queued)
	}
	if changed, _ := out["changed"].(bool); !changed {
		printInfo("Nothing to change.")
		return nil
	}
	if add {
		printSuccess(fmt.Sprintf("Added %s to favorites.", ticker))
	} else {
		printSuccess(fmt.Sprintf("Removed %s from favorites.", ticker))
	}
	return nil
}

func newTradeCmd(apiBase *string, side string) *cobra.Command {
	return &cobra.Command{
		Use:   side + " TICKER QTY",
		Short: strings.ToUpper(side[:1]) + side[1:] + " shares at the current quote",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ticker, err := parseTicker(args[0])
			if err != nil {
				return err
			}
			qty, err := parseQuantity(args[1])
			if err != nil {
				return err
			}
			tx := game.Transaction{Side: side, Ticker: ticker, Quantity: qty}
			idem := uuid.NewString()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			res, err := newClient(apiBase).Transact(ctx, sess.AccessToken, tx, idem)
			if err != nil {
				return queueOnNetworkError(err, syncq.Command{
					Method:         http.MethodPost,
					Path:           "/v1/transactions",
					Body:           cl.TransactionBody(tx),
					IdempotencyKey: idem,
				})
			}
			renderTransaction(res)
			return nil
		},
	}
}

func newLeadersCmd(apiBase *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "leaders",
		Aliases: []string{"leaderboard"},
		Short:   "Show players ranked by net worth",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			rows, err := newClient(apiBase).Leaderboard(ctx, sess.AccessToken, limit)
			if err != nil {
				return err
			}
			renderLeaderboard(rows)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows")
	return cmd
}

func newStatusCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cash, positions and recent activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			st, err := newClient(apiBase).Status(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			renderStatus(st)
			return nil
		},
	}
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay writes queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			client := newClient(apiBase)
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()

			send := func(ctx context.Context, q syncq.Command) error {
				_, err := client.Do(ctx, q.Method, q.Path, sess.AccessToken, q.Body, q.IdempotencyKey)
				var se *cl.StatusError
				if errors.As(err, &se) && se.Code == http.StatusConflict {
					// already applied on an earlier attempt
					return nil
				}
				return err
			}
			res, err := syncq.Replay(ctx, send, cl.IsNetworkError)
			if err != nil {
				return err
			}
			for _, f := range res.Dropped {
				printError(fmt.Sprintf("Dropped %s %s: %s", f.Command.Method, f.Command.Path, f.Err))
			}
			printSuccess(fmt.Sprintf("Sync complete: replayed=%d dropped=%d remaining=%d", res.Sent, len(res.Dropped), res.Pending))
			return nil
		},
	}
}

func queueOnNetworkError(err error, cmd syncq.Command) error {
	if err == nil {
		return nil
	}
	if !cl.IsNetworkError(err) {
		return err
	}
	if qerr := syncq.Push(cmd); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", errors.Join(err, qerr))
	}
	printWarn("API unreachable, queued for `stk sync`.")
	return nil
}
