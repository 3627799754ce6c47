package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"authpay/models"
	"authpay/services"
)

func newProductsCmd(s settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Manage billing products",
	}
	cmd.AddCommand(
		newProductsInitCmd(s),
		newProductsListCmd(s),
		newProductsDeleteCmd(s),
		newProductsVerifyCmd(s),
	)
	return cmd
}

// authedClient returns a client holding an admin session.
func authedClient(cmd *cobra.Command, s settings, allowRegister bool) (*Client, error) {
	if s.password() == "" {
		return nil, errors.New("admin password is required (--admin-password or BILLINGCTL_ADMIN_PASSWORD)")
	}
	c, err := s.client()
	if err != nil {
		return nil, err
	}
	if allowRegister {
		err = c.LoginOrRegister(cmd.Context(), s.email(), s.password())
	} else {
		err = c.Login(cmd.Context(), s.email(), s.password())
	}
	if err != nil {
		return nil, fmt.Errorf("sign in as %s: %w", s.email(), err)
	}
	return c, nil
}

func newProductsInitCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the subscription and token products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := authedClient(cmd, s, true)
			if err != nil {
				return err
			}
			res, err := c.InitializeProducts(cmd.Context())
			if err != nil {
				return fmt.Errorf("initialize products: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "products added: %d\nsubscription products: %d\ntoken product: %t\n",
				res.ProductsAdded, res.SubscriptionProducts, res.TokenProduct)
			return nil
		},
	}
}

func newProductsListCmd(s settings) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.client()
			if err != nil {
				return err
			}
			products, err := c.ListProducts(cmd.Context())
			if err != nil {
				return fmt.Errorf("list products: %w", err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(products)
			}
			return writeProducts(cmd, products)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeProducts(cmd *cobra.Command, products []models.Product) error {
	if len(products) == 0 {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no products")
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPRICE\tPRICE ID\tTYPE")
	for _, p := range products {
		price := "-"
		if p.PriceCents != nil {
			price = fmt.Sprintf("%d.%02d %s", *p.PriceCents/100, *p.PriceCents%100, strings.ToUpper(p.Currency))
		}
		kind := p.Metadata[models.MetaType]
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, price, p.PriceID, kind)
	}
	return tw.Flush()
}

func newProductsDeleteCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a product by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := authedClient(cmd, s, false)
			if err != nil {
				return err
			}
			if err := c.DeleteProduct(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("delete %q: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

// missingProducts lists the paid tier and token products that are absent or have no price.
func missingProducts(products []models.Product, tiers []models.SubscriptionTier) []string {
	byName := make(map[string]models.Product, len(products))
	for _, p := range products {
		byName[p.Name] = p
	}

	want := []string{}
	for _, t := range tiers {
		if t.PriceCents > 0 {
			want = append(want, services.SubscriptionProductName(t.Name))
		}
	}
	want = append(want, services.TokenProductName)

	var missing []string
	for _, name := range want {
		if p, ok := byName[name]; !ok || p.PriceID == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func newProductsVerifyCmd(s settings) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every paid tier and the token product exist with prices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := s.client()
			if err != nil {
				return err
			}
			products, err := c.ListProducts(cmd.Context())
			if err != nil {
				return fmt.Errorf("list products: %w", err)
			}
			tiers, err := c.Tiers(cmd.Context())
			if err != nil {
				return fmt.Errorf("list tiers: %w", err)
			}

			if missing := missingProducts(products, tiers); len(missing) > 0 {
				return fmt.Errorf("missing or unpriced products: %s", strings.Join(missing, ", "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "all products present")
			return nil
		},
	}
}
