package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joelkehle/solarsite/internal/calculator"
	"github.com/joelkehle/solarsite/internal/estimate"
	"github.com/joelkehle/solarsite/internal/format"
)

func newEstimateCmd(a *app) *cobra.Command {
	var (
		audience    string
		bill        float64
		tariff      float64
		coverage    float64
		price       float64
		subsidy     float64
		presetsFile string
		plain       bool
		width       int
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Print a solar ROI estimate",
		Example: `  solarsite estimate --audience home --bill 5000 --tariff 9 --coverage 80
  solarsite estimate --audience commercial --bill 60000 --tariff 11 --coverage 70 --plain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			aud, err := calculator.ParseAudience(audience)
			if err != nil {
				return err
			}
			presets := calculator.DefaultPresets()
			if presetsFile != "" {
				if presets, err = calculator.LoadPresets(presetsFile); err != nil {
					return err
				}
			}

			sess := calculator.NewSession(presets, aud)
			sess.SetField(calculator.FieldMonthlyBill, bill)
			sess.SetField(calculator.FieldTariff, tariff)
			sess.SetField(calculator.FieldCoverageGoal, coverage)
			if cmd.Flags().Changed("price") {
				sess.SetField(calculator.FieldPricePerKW, price)
			}
			if cmd.Flags().Changed("subsidy") {
				sess.SetField(calculator.FieldSubsidyAmount, subsidy)
			}

			f := format.New(a.cfg.Locale, a.cfg.Currency)
			md := estimate.BuildMarkdown(estimate.New(sess.Input()), f)
			if plain {
				_, err := fmt.Fprint(cmd.OutOrStdout(), md)
				return err
			}
			out, err := estimate.RenderTerminal(md, width)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().StringVar(&audience, "audience", "home", "home or commercial")
	cmd.Flags().Float64Var(&bill, "bill", 5000, "Average monthly electricity bill")
	cmd.Flags().Float64Var(&tariff, "tariff", 9, "Tariff per kWh")
	cmd.Flags().Float64Var(&coverage, "coverage", 80, "Share of consumption to cover, in percent")
	cmd.Flags().Float64Var(&price, "price", 0, "Installed price per kW (default: audience preset)")
	cmd.Flags().Float64Var(&subsidy, "subsidy", 0, "Flat subsidy amount (default: audience preset)")
	cmd.Flags().StringVar(&presetsFile, "presets", "", "YAML presets file")
	cmd.Flags().BoolVar(&plain, "plain", false, "Print raw markdown instead of styled terminal output")
	cmd.Flags().IntVar(&width, "width", 80, "Word wrap width for terminal output")
	return cmd
}

func newPresetsCmd(a *app) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Validate and print the audience preset table",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				file = a.cfg.PresetsFile
			}
			table := calculator.DefaultPresets()
			if file != "" {
				var err error
				if table, err = calculator.LoadPresets(file); err != nil {
					return err
				}
			}
			blob, err := calculator.EncodePresets(table)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(blob)
			return err
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "YAML presets file to validate (default: PRESETS_FILE)")
	return cmd
}
