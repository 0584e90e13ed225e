package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/simlink/internal/config"
	"github.com/danmuck/simlink/internal/gym"
	"github.com/danmuck/simlink/internal/logging"
	"github.com/danmuck/simlink/internal/observability"
)

// startAdmin serves the admin surface in the background when configured.
// It stops with ctx.
func startAdmin(ctx context.Context, cfg config.NodeConfig, status func() any) {
	adminCfg, ok := cfg.Admin(status)
	if !ok {
		return
	}
	admin := observability.NewAdmin(adminCfg)
	go func() {
		if err := admin.Serve(ctx); err != nil {
			logging.Errf("simlink admin node=%s: %v", adminCfg.Node, err)
		}
	}()
}

// runSim steps env until the controller stops it or cfg.Steps is reached,
// then reports the end of the simulation.
func runSim(ctx context.Context, out io.Writer, cfg config.NodeConfig, env gym.Environment) error {
	sess, err := gym.Open(ctx, cfg.Gym(), env)
	if err != nil {
		return err
	}
	defer sess.Close()

	adminCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	startAdmin(adminCtx, cfg, func() any { return sess.Snapshot() })

	for i := 0; cfg.Steps == 0 || i < cfg.Steps; i++ {
		err := sess.Step(ctx)
		if errors.Is(err, gym.ErrStopRequested) {
			logging.Infof("simlink sim env=%d stopped by controller after %d steps", cfg.EnvID, sess.Stats().Steps)
			_, err = fmt.Fprintf(out, "stopped by controller after %d steps\n", sess.Stats().Steps)
			return err
		}
		if err != nil {
			return err
		}
	}

	err = sess.NotifySimulationEnd(ctx)
	if err != nil && !errors.Is(err, gym.ErrStopRequested) {
		return err
	}
	logging.Infof("simlink sim env=%d simulation ended after %d steps", cfg.EnvID, sess.Stats().Steps)
	_, err = fmt.Fprintf(out, "simulation ended after %d steps\n", sess.Stats().Steps)
	return err
}

// runAgent drives one episode with policy and prints its summary.
func runAgent(ctx context.Context, out io.Writer, cfg config.NodeConfig, policy gym.Policy) error {
	peer, err := gym.OpenPeer(ctx, cfg.Gym())
	if err != nil {
		return err
	}
	defer peer.Close()

	adminCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	startAdmin(adminCtx, cfg, func() any { return peer.Snapshot() })

	res, err := peer.Run(ctx, policy, cfg.Steps)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "episode finished: steps=%d reward=%g reason=%s stopped=%t\n",
		res.Steps, res.TotalReward, res.Reason, res.Stopped)
	return err
}
