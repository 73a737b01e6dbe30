package cmd

import (
	"fmt"
	"os"

	"github.com/rzbill/gate/pkg/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serverAddr string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "gatectl",
	Short: "Gate - Multi-tenant Admission Edge",
	Long: `Gatectl inspects and probes a running Gate admission server.
It reports snapshot cache health and runs admission checks the same
way the gateway would evaluate a live request.`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			cmd.Help()
			return
		}
	},
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "", "Address of the Gate server")

	viper.SetEnvPrefix("GATE")
	viper.AutomaticEnv()
	_ = viper.BindEnv("server", "GATE_SERVER")
}

// resolveServerAddr applies flag then env then default precedence.
func resolveServerAddr() string {
	if serverAddr != "" {
		return serverAddr
	}
	return viper.GetString("server")
}
