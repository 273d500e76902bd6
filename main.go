package main

import (
	"fmt"
	"os"

	"bftsim/config"
	"bftsim/consensus"
	"bftsim/execution"
	"bftsim/logging"
	"bftsim/network"
	"bftsim/sign"

	"github.com/hashicorp/go-hclog"
)

const tick = 0.05

var conf *config.Config
var err error

func init() {
	conf, err = config.LoadConfig("", "config")
	if err != nil {
		panic(err)
	}
}

func main() {
	os.Exit(runSimulation())
}

func runSimulation() int {
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "orchestrator",
		Output: hclog.DefaultOutput,
		Level:  hclog.Level(conf.LogLevel),
	})

	fmt.Println("============================================================")
	fmt.Println("BFT SIMULATOR - Starting...")
	fmt.Println("============================================================")

	detLog := logging.NewDeterministicLog()
	sim := network.NewSimulator(conf.Network, conf.Seed, logger.Named("network"))

	// Create and register the validator nodes.
	fmt.Printf("\ncreating %d nodes...\n", conf.NumNodes)
	nodes := make([]*consensus.Node, conf.NumNodes)
	validatorIDs := make([]string, conf.NumNodes)
	for i := 0; i < conf.NumNodes; i++ {
		name := fmt.Sprintf("node%d", i)
		nodes[i] = consensus.NewNode(name, true, conf, sim)
		sim.RegisterNode(nodes[i])
		validatorIDs[i] = name
	}
	for _, node := range nodes {
		node.SetValidators(validatorIDs)
	}

	// Generate signed user transactions and distribute them round-robin.
	fmt.Printf("creating %d transactions...\n", conf.NumTransactions)
	signer := sign.NewSigner(conf.ChainID)
	for i := 0; i < conf.NumTransactions; i++ {
		privKey, pubKey := sign.GenKeyPair()
		sender := fmt.Sprintf("user%d", i)
		key := sender + "/balance"
		value := fmt.Sprintf("%d", (i+1)*100)
		tx, err := execution.NewTransaction(signer, privKey, pubKey, sender, key, value)
		if err != nil {
			logger.Error("fail to create the transaction", "sender", sender, "error", err)
			return 1
		}
		target := nodes[i%conf.NumNodes]
		if err := target.SubmitTransaction(tx); err != nil {
			logger.Error("fail to submit the transaction", "sender", sender, "error", err)
			return 1
		}
		detLog.Append(sim.Now(), "transaction_created", map[string]interface{}{
			"tx_id":  i,
			"sender": sender,
			"key":    key,
			"value":  value,
		})
	}

	// Round-robin proposers, one block per simulation window.
	steps := int(conf.SimulationDuration / tick)
	for blockNum := 0; blockNum < conf.NumBlocks; blockNum++ {
		height := uint64(blockNum + 1)
		proposer := nodes[blockNum%conf.NumNodes]
		fmt.Printf("\nblock %d/%d: proposer %s\n", blockNum+1, conf.NumBlocks, proposer.ID())

		if proposer.PendingTransactionCount() > 0 {
			proposer.ProposeBlock()
			detLog.Append(sim.Now(), "block_proposed", map[string]interface{}{
				"height":   height,
				"proposer": proposer.ID(),
			})
		}

		for step := 0; step < steps; step++ {
			sim.Step(tick)
		}

		finalized := countAtHeight(nodes, height)
		fmt.Printf("  finalization: %d/%d nodes\n", finalized, conf.NumNodes)
		detLog.Append(sim.Now(), "block_finalized", map[string]interface{}{
			"height":          height,
			"finalized_nodes": finalized,
			"total_nodes":     conf.NumNodes,
		})
	}

	// Explicit catch-up: lagging nodes request the blocks they miss.
	targetHeight := uint64(conf.NumBlocks)
	for round := 0; round < 3 && countAtHeight(nodes, targetHeight) < len(nodes); round++ {
		for _, node := range nodes {
			for h := node.CurrentHeight() + 1; h <= targetHeight; h++ {
				node.SendBlockRequest(h)
			}
		}
		for step := 0; step < steps; step++ {
			sim.Step(tick)
		}
	}

	success := verify(nodes, targetHeight)

	// Network statistics and the auditable event stream.
	events := sim.Events()
	eventCounts := make(map[string]int)
	for _, event := range events {
		eventCounts[event.Type]++
		detLog.Append(event.Time, "network_"+event.Type, event.ToMap())
	}
	fmt.Println("\nnetwork statistics:")
	for _, eventType := range []string{"send", "delay", "drop", "duplicate", "receive", "rate_limited"} {
		if count, ok := eventCounts[eventType]; ok {
			fmt.Printf("  %s: %d\n", eventType, count)
		}
	}

	if err := detLog.Save(conf.LogFile); err != nil {
		logger.Error("fail to save the event log", "file", conf.LogFile, "error", err)
		return 1
	}
	if hash, err := detLog.Hash(); err == nil {
		fmt.Printf("\nlog saved to %s (hash %s...)\n", conf.LogFile, hash[:16])
	}

	fmt.Println("\n============================================================")
	if success {
		fmt.Println("SIMULATION COMPLETE: all nodes agree")
		return 0
	}
	fmt.Println("SIMULATION COMPLETE: nodes diverged")
	return 1
}

func countAtHeight(nodes []*consensus.Node, height uint64) int {
	count := 0
	for _, node := range nodes {
		if node.CurrentHeight() >= height {
			count++
		}
	}
	return count
}

// verify checks that every node reached the target height with one unique
// state commitment.
func verify(nodes []*consensus.Node, targetHeight uint64) bool {
	fmt.Println("\n============================================================")
	fmt.Println("VERIFICATION")
	fmt.Println("============================================================")

	allAtTarget := true
	for _, node := range nodes {
		height := node.CurrentHeight()
		fmt.Printf("  %s: height=%d state=%s...\n", node.ID(), height, node.StateCommitment()[:16])
		if height < targetHeight {
			allAtTarget = false
		}
	}

	commitments := make(map[string]bool)
	for _, node := range nodes {
		commitments[node.StateCommitment()] = true
	}
	if len(commitments) == 1 {
		fmt.Println("\nall nodes have a consistent state")
	} else {
		fmt.Printf("\nWARNING: %d different state commitments\n", len(commitments))
	}

	return allAtTarget && len(commitments) == 1
}
