package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func Execute() error {
	return newRootCmd().Execute()
}

type settings struct {
	v *viper.Viper
}

func (s settings) apiURL() string   { return s.v.GetString("api_url") }
func (s settings) email() string    { return s.v.GetString("admin_email") }
func (s settings) password() string { return s.v.GetString("admin_password") }

func (s settings) client() (*Client, error) {
	return NewClient(s.apiURL())
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BILLINGCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	rootCmd := &cobra.Command{
		Use:           "billingctl",
		Short:         "Manage authpay billing products",
		Long:          "billingctl creates, lists, deletes and verifies the subscription and token products of an authpay API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "http://localhost:8000", "authpay API base URL (env BILLINGCTL_API_URL)")
	flags.String("admin-email", "admin@example.com", "admin account email (env BILLINGCTL_ADMIN_EMAIL)")
	flags.String("admin-password", "", "admin account password (env BILLINGCTL_ADMIN_PASSWORD)")
	_ = v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = v.BindPFlag("admin_email", flags.Lookup("admin-email"))
	_ = v.BindPFlag("admin_password", flags.Lookup("admin-password"))

	s := settings{v: v}
	rootCmd.AddCommand(newProductsCmd(s))
	return rootCmd
}
