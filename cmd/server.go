// Server = registry + batch ledger + asset router + token ledger + http
// reporter, all backed by one sqlite file. Components are configured via
// environment variables (strings!).

package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	logger "github.com/sirupsen/logrus"

	"github.com/turingcapitalgroup/kam-go/adapter"
	"github.com/turingcapitalgroup/kam-go/batch"
	"github.com/turingcapitalgroup/kam-go/common"
	"github.com/turingcapitalgroup/kam-go/ktoken"
	"github.com/turingcapitalgroup/kam-go/receiver"
	"github.com/turingcapitalgroup/kam-go/registry"
	"github.com/turingcapitalgroup/kam-go/reporter"
	"github.com/turingcapitalgroup/kam-go/request"
	"github.com/turingcapitalgroup/kam-go/router"
)

// Keep the configuration's fields as "text" as possible.
// Its easier to load it from env vars or a config file.
type SettlementServerConfig struct {
	// state side
	DbFilePath string // db file path

	// operator addresses (hex strings)
	RouterAddr         string // the settlement engine's own identity
	AdminAddr          string
	EmergencyAdminAddr string
	RelayerAddr        string
	GuardianAddr       string
	InstitutionAddrs   []string // qualified institutions for the minter

	// settlement config
	CooldownSeconds int64 // propose/execute delay, 0 = protocol default

	// Http side
	HttpIp   string // eg. 0.0.0.0
	HttpPort string // eg. 8080
}

// SettlementServer holds the objects that consists of the settlement
// daemon.
type SettlementServer struct {
	MyAuthorizer *common.SimAuthorizer

	MyRegistryDb *registry.RegistryDB
	MyRegistry   *registry.Registry

	MyBatchDb     *batch.BatchDB
	MyBatchLedger *batch.Ledger

	MyRequestDb *request.RequestDB
	MyTokenDb   *ktoken.TokenDB
	MyAdapters  *adapter.SimResolver
	MyReceivers *receiver.Factory

	MyRouterDb *router.RouterDB
	MyRouter   *router.Router
}

// NewSettlementServer wires every component over one sqlite handle and
// starts the http reporter. ctx cancels nothing here yet; it is threaded
// through for parity with the reporter goroutine's lifetime.
func NewSettlementServer(ssc *SettlementServerConfig, ctx context.Context, wg *sync.WaitGroup) (*SettlementServer, error) {
	// Shared sqlite handle. Every table-owning component creates its own
	// tables on construction.
	sqldb, err := sql.Open("sqlite3", ssc.DbFilePath)
	if err != nil {
		logger.Fatalf("failed to open db file: %v", err)
		return nil, err
	}

	// Roles come straight from config. The authorizer is the single
	// source every role check consults.
	auth := common.NewSimAuthorizer()
	admin := ethcommon.HexToAddress(ssc.AdminAddr)
	auth.Grant(admin, common.RoleAdmin)
	auth.Grant(ethcommon.HexToAddress(ssc.EmergencyAdminAddr), common.RoleEmergencyAdmin)
	auth.Grant(ethcommon.HexToAddress(ssc.RelayerAddr), common.RoleRelayer)
	auth.Grant(ethcommon.HexToAddress(ssc.GuardianAddr), common.RoleGuardian)
	for _, inst := range ssc.InstitutionAddrs {
		auth.Grant(ethcommon.HexToAddress(inst), common.RoleInstitution)
	}

	// registry
	regDb, err := registry.NewRegistryDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create registry db: %v", err)
		return nil, err
	}
	reg := registry.New(regDb, auth)

	// batch ledger
	batchDb, err := batch.NewBatchDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create batch db: %v", err)
		return nil, err
	}
	batches := batch.NewLedger(batchDb, auth)

	// request ledger
	requestDb, err := request.NewRequestDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create request db: %v", err)
		return nil, err
	}

	// token ledger
	tokenDb, err := ktoken.NewTokenDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create token db: %v", err)
		return nil, err
	}

	adapters := adapter.NewSimResolver()
	receivers := receiver.NewFactory(tokenDb)

	// asset router
	routerDb, err := router.NewRouterDB(sqldb)
	if err != nil {
		logger.Fatalf("failed to create router db: %v", err)
		return nil, err
	}

	routerAddr := ethcommon.HexToAddress(ssc.RouterAddr)
	rt := router.New(router.Config{
		Addr:     routerAddr,
		Cooldown: time.Duration(ssc.CooldownSeconds) * time.Second,
	}, routerDb, reg, batches, adapters, tokenDb, receivers)

	// Only the router may settle batches from here on.
	if err := batches.BindRouter(admin, routerAddr); err != nil && err != batch.ErrRouterAlreadyBound {
		logger.Fatalf("failed to bind router to batch ledger: %v", err)
		return nil, err
	}

	// *** Setup a http server to report status ***
	httpServer := reporter.NewHttpReporter(
		ssc.HttpIp,
		ssc.HttpPort,
		batches,
		rt,
		requestDb,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		httpServer.Run()
	}()

	// Give it some time to start the http server
	time.Sleep(1 * time.Second)
	// *** End the setup of http server ***

	_ = ctx

	return &SettlementServer{
		MyAuthorizer:  auth,
		MyRegistryDb:  regDb,
		MyRegistry:    reg,
		MyBatchDb:     batchDb,
		MyBatchLedger: batches,
		MyRequestDb:   requestDb,
		MyTokenDb:     tokenDb,
		MyAdapters:    adapters,
		MyReceivers:   receivers,
		MyRouterDb:    routerDb,
		MyRouter:      rt,
	}, nil
}

// Create, then start the settlement server and wait.
// Press Ctrl-C to kill the server.
func StartSettlementServerAndWait(ssc *SettlementServerConfig) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up a signal channel to listen for Ctrl-C (SIGINT) or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("Received signal: %v, cancelling context...\n", sig)
		cancel()
	}()

	var wg sync.WaitGroup

	_, err := NewSettlementServer(ssc, ctx, &wg)
	if err != nil {
		logger.Fatalf("failed to create settlement server: %v", err)
		return
	}

	// wait for all routines to finish (which is forever)
	wg.Wait()
}
