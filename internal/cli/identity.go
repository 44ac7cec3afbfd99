package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/cli/appctx"
)

var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Inspect and maintain stable sync identities",
	Long: `A stable sync identity is a UUID bound to a local user. It travels with
every post, comment and like in a snapshot, so the same person is recognized
on every installation regardless of their display name.`,
}

var identitySummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count users and users with a stable identity",
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runIdentitySummary),
}

var identityEnsureCmd = &cobra.Command{
	Use:   "ensure <user>",
	Short: "Mint a stable identity for a user that has none",
	Long: `Ensure prints the user's stable identity, minting and storing a new one
first if the user has none. Running it again prints the same identity.`,
	Args: cobra.ExactArgs(1),
	RunE: appctx.WithApp(appctx.DefaultOptions(), runIdentityEnsure),
}

var identityShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Show a user's sync details",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runIdentityShow),
}

func init() {
	rootCmd.AddCommand(identityCmd)
	identityCmd.AddCommand(identitySummaryCmd)
	identityCmd.AddCommand(identityEnsureCmd)
	identityCmd.AddCommand(identityShowCmd)

	addOutputFlags(identitySummaryCmd)
	addOutputFlags(identityEnsureCmd)
	addOutputFlags(identityShowCmd)
}

func runIdentitySummary(app *appctx.App, cmd *cobra.Command, args []string) error {
	summary, err := app.Service().IdentitySummary()
	if err != nil {
		return fmt.Errorf("failed to summarize identities: %w", err)
	}

	if handled, err := renderer(cmd).Structured(summary); handled || err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "users: %d\n", summary.TotalUsers)
	fmt.Fprintf(out, "with identity: %d\n", summary.UsersWithIdentity)
	fmt.Fprintf(out, "sync ready: %t\n", summary.SyncReady)
	return nil
}

func runIdentityEnsure(app *appctx.App, cmd *cobra.Command, args []string) error {
	user, err := appctx.LookupUser(app.Store, args[0])
	if err != nil {
		return err
	}

	id, err := app.Service().EnsureIdentity(user.ID)
	if err != nil {
		return err
	}

	result := map[string]interface{}{
		"user_id":   user.ID,
		"username":  user.Username,
		"sync_uuid": id,
		"minted":    !user.HasIdentity(),
	}
	if handled, err := renderer(cmd).Structured(result); handled || err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runIdentityShow(app *appctx.App, cmd *cobra.Command, args []string) error {
	user, err := appctx.LookupUser(app.Store, args[0])
	if err != nil {
		return err
	}

	info, err := app.Service().IdentityInfo(user.ID)
	if err != nil {
		return err
	}

	r := renderer(cmd)
	if handled, err := r.Structured(info); handled || err != nil {
		return err
	}

	syncID := info.SyncUUID
	if syncID == "" {
		syncID = "(none)"
	}
	return r.RenderTable(
		[]string{"ID", "USERNAME", "SYNC_UUID", "ORIGINAL_NAME", "ORIGIN_DEVICE", "PLACEHOLDER"},
		[][]string{{
			fmt.Sprint(info.UserID), info.Username, syncID,
			info.OriginalUsername, info.OriginDevice, fmt.Sprint(info.Placeholder),
		}},
	)
}
