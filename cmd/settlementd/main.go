package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/turingcapitalgroup/kam-go/cmd"
	"github.com/turingcapitalgroup/kam-go/logconfig"
)

const (
	ENV_CONFIG_FILE_PATH = "KAM_CONFIG"
)

func main() {
	logconfig.ConfigProductionLogger()

	// Tool to read environment variables
	viper.AutomaticEnv()

	// Accessing an environment variable of configuration file location.
	_config_file := viper.GetString(ENV_CONFIG_FILE_PATH)
	fmt.Printf("Settlement server configuration file = %s\n", _config_file)

	// See if file exists
	if !cmd.FileExists(_config_file) {
		fmt.Printf("Settlement server configuration file not found: %s\n", _config_file)
		return
	}

	// Read from config file.
	success := initializeViper(_config_file)
	if !success {
		return
	}

	// Make the configuration
	ssc := PrepareSettlementServerConfig()
	if ssc == nil {
		fmt.Printf("Error loading settlement server configuration\n")
		return
	}

	fmt.Println("Starting settlement server... press Ctrl+C to kill the server")
	// Start server and block.
	cmd.StartSettlementServerAndWait(ssc)
}

func initializeViper(filePath string) bool {
	viper.SetConfigFile(filePath)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading configuration file, %s", err)
		return false
	}
	return true
}

// PrepareSettlementServerConfig reads configuration variables and returns
// a SettlementServerConfig.
func PrepareSettlementServerConfig() *cmd.SettlementServerConfig {
	return &cmd.SettlementServerConfig{
		// state side
		DbFilePath: viper.GetString("DB_FILE_PATH"),
		// operators
		RouterAddr:         viper.GetString("ROUTER_ADDR"),
		AdminAddr:          viper.GetString("ADMIN_ADDR"),
		EmergencyAdminAddr: viper.GetString("EMERGENCY_ADMIN_ADDR"),
		RelayerAddr:        viper.GetString("RELAYER_ADDR"),
		GuardianAddr:       viper.GetString("GUARDIAN_ADDR"),
		InstitutionAddrs:   viper.GetStringSlice("INSTITUTION_ADDRS"),
		// settlement
		CooldownSeconds: viper.GetInt64("COOLDOWN_SECONDS"),
		// Http side
		HttpIp:   viper.GetString("HTTP_IP"),
		HttpPort: viper.GetString("HTTP_PORT"),
	}
}
