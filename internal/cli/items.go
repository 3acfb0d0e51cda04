package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/lazypower/crisp/internal/auth"
	"github.com/lazypower/crisp/internal/client"
	"github.com/lazypower/crisp/internal/config"
	"github.com/lazypower/crisp/internal/engagement"
	"github.com/spf13/cobra"
)

const cliTimeout = 30 * time.Second

var (
	answerID   string
	outputJSON bool
	tokenTTL   time.Duration
)

func init() {
	for _, c := range []*cobra.Command{likeCmd, unlikeCmd, refreshCmd} {
		c.Flags().StringVar(&answerID, "answer", "", "Answer ID (default: first answer carrying the label)")
	}
	for _, c := range []*cobra.Command{showCmd, likeCmd, unlikeCmd, refreshCmd, importCmd, createCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Print the item as JSON")
	}
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}

// apiClient builds a client authenticated as --token, $CRISP_TOKEN, or a
// token signed for --user, in that order.
func apiClient(cfg config.Config) (*client.Client, error) {
	tok := token
	if tok == "" {
		tok = os.Getenv("CRISP_TOKEN")
	}
	if tok == "" && userID != "" {
		var err error
		tok, err = auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(userID, time.Hour)
		if err != nil {
			return nil, err
		}
	}
	return client.New(serverURL, tok), nil
}

// --- import command ---

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import items in the legacy count/userIdList/timestamps shape",
	Long:  "Reads a JSON item or array of items with legacy labels and sends each to the server, which rebuilds the ledgers. Reads stdin when no file is given. Requires --user or --token.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runImport,
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	in, closeIn, err := openInput(args)
	if err != nil {
		return err
	}
	defer closeIn()
	legacy, err := readLegacy(in)
	if err != nil {
		return err
	}

	c, err := apiClient(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
	defer cancel()

	for _, li := range legacy {
		item, err := c.ImportItem(ctx, li)
		if err != nil {
			return fmt.Errorf("import item %q: %w", li.ID, err)
		}
		if err := printItem(cmd.OutOrStdout(), item); err != nil {
			return err
		}
	}
	return nil
}

// --- create command ---

var createCmd = &cobra.Command{
	Use:   "create [file]",
	Short: "Create an item from JSON (question, answers and label names; no likes)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, closeIn, err := openInput(args)
		if err != nil {
			return err
		}
		defer closeIn()

		var item engagement.ContentItem
		if err := json.NewDecoder(in).Decode(&item); err != nil {
			return fmt.Errorf("decode item: %w", err)
		}

		c, err := apiClient(config.Load())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()

		created, err := c.CreateItem(ctx, item)
		if err != nil {
			return err
		}
		return printItem(cmd.OutOrStdout(), created)
	},
}

// openInput opens the file named in args, or stdin when there is none.
func openInput(args []string) (io.Reader, func(), error) {
	if len(args) == 0 {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", args[0], err)
	}
	return f, func() { f.Close() }, nil
}

// readLegacy accepts a single legacy item or an array of them.
func readLegacy(r io.Reader) ([]engagement.LegacyItem, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read import: %w", err)
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []engagement.LegacyItem
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode import: %w", err)
		}
		return items, nil
	}
	var item engagement.LegacyItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode import: %w", err)
	}
	return []engagement.LegacyItem{item}, nil
}

// --- show command ---

var showCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show an item's labels and current crispness",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(config.Load())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()

		item, err := c.GetItem(ctx, args[0])
		if err != nil {
			return err
		}
		return printItem(cmd.OutOrStdout(), item)
	},
}

// --- like / unlike / refresh commands ---

var likeCmd = labelCommand("like", "Endorse a label")
var unlikeCmd = labelCommand("unlike", "Withdraw an endorsement")
var refreshCmd = labelCommand("refresh", "Restart the decay clock of your endorsement (uses daily quota)")

func labelCommand(op, short string) *cobra.Command {
	return &cobra.Command{
		Use:   op + " <item-id> <label>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := apiClient(config.Load())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
			defer cancel()

			item, err := c.Apply(ctx, op, engagement.Target{ItemID: args[0], AnswerID: answerID, Label: args[1]})
			if err != nil {
				return err
			}
			return printItem(cmd.OutOrStdout(), item)
		},
	}
}

// --- quota command ---

var quotaCmd = &cobra.Command{
	Use:   "quota",
	Short: "Show remaining refreshes for today",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := apiClient(config.Load())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cliTimeout)
		defer cancel()

		q, err := c.Quota(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d refreshes left", q.UserID, q.Remaining)
		if q.ResetAt != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (resets %s)", q.ResetAt)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	},
}

// --- token command ---

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign a bearer token with the configured secret (development)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		tok, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(args[0], tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func printItem(w io.Writer, item *engagement.ContentItem) error {
	if outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(item)
	}

	fmt.Fprintf(w, "%s  %s\n", item.ID, item.Question)
	for _, a := range item.Answers {
		fmt.Fprintf(w, "  %s  %s\n", a.ID, a.Text)
		for _, l := range a.Labels {
			fmt.Fprintf(w, "    %-16s crispness %6.2f  likes %d", l.Name, l.Crispness, l.Count)
			if len(l.UserIDList) > 0 {
				fmt.Fprintf(w, "  [%s]", strings.Join(l.UserIDList, ", "))
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
