package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lherron/kindwall/internal/cli/appctx"
	"github.com/lherron/kindwall/internal/domain"
	"github.com/lherron/kindwall/internal/store"
)

var userAdmCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage local users",
}

var userAddAdmCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a local user with a stable sync identity",
	Args:  cobra.ExactArgs(1),
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runUserAdd),
}

var userLsAdmCmd = &cobra.Command{
	Use:   "ls",
	Short: "List local users",
	RunE:  appctx.WithApp(appctx.DefaultOptions(), runUserLs),
}

func init() {
	rootAdmCmd.AddCommand(userAdmCmd)
	userAdmCmd.AddCommand(userAddAdmCmd)
	userAdmCmd.AddCommand(userLsAdmCmd)

	userAddAdmCmd.Flags().String("bio", "", "Profile bio")
	userAddAdmCmd.Flags().String("avatar", "", "Avatar path")
	addOutputFlags(userAddAdmCmd)
	addOutputFlags(userLsAdmCmd)
}

func runUserAdd(app *appctx.App, cmd *cobra.Command, args []string) error {
	bio, _ := cmd.Flags().GetString("bio")
	avatar, _ := cmd.Flags().GetString("avatar")

	user, err := app.Store.Users.Create(nil, store.CreateUserParams{
		Username:     args[0],
		Bio:          bio,
		AvatarPath:   avatar,
		OriginDevice: app.Config.DeviceName,
	})
	if err != nil {
		if store.IsUniqueViolation(err) {
			return fmt.Errorf("user %q already exists", args[0])
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := app.Store.Users.EnsureSyncUUID(&user.ID, user.ID)
	if err != nil {
		return err
	}
	user.SyncUUID = &id

	if handled, err := renderer(cmd).Structured(user); handled || err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Created user %s (id %d, sync %s)\n", mark(out, true), user.Username, user.ID, id)
	return nil
}

func runUserLs(app *appctx.App, cmd *cobra.Command, args []string) error {
	users, err := app.Store.Users.List()
	if err != nil {
		return err
	}
	if users == nil {
		users = []domain.User{}
	}

	r := renderer(cmd)
	if handled, err := r.Structured(users); handled || err != nil {
		return err
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			fmt.Sprint(u.ID), u.Username, domain.StringValue(u.SyncUUID), domain.StringValue(u.OriginDevice),
		})
	}
	return r.RenderTable([]string{"ID", "USERNAME", "SYNC_UUID", "ORIGIN_DEVICE"}, rows)
}
