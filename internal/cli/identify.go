package cli

import (
	"encoding/json"
	"fmt"

	"bitespeed-identity/internal/models"
	"bitespeed-identity/internal/service"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newIdentifyCommand(v *viper.Viper) *cobra.Command {
	var email, phone string

	cmd := &cobra.Command{
		Use:   "identify",
		Short: "Reconcile one email/phone pair against the store and print the contact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.IdentifyRequest{}
			if email != "" {
				req.Email = &email
			}
			if phone != "" {
				raw, err := json.Marshal(phone)
				if err != nil {
					return err
				}
				req.PhoneNumber = raw
			}

			id, err := service.ValidateIdentity(req)
			if err != nil {
				return err
			}

			a, err := newApp(v)
			if err != nil {
				return err
			}
			defer a.Close()

			resp, err := a.service.Identify(cmd.Context(), id)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(resp, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	return cmd
}
