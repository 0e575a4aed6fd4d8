package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"terrainsched/camera"
	"terrainsched/config"
	"terrainsched/events"
	"terrainsched/scheduler"
	"terrainsched/srs"
	"terrainsched/tileload"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive the scheduler through a synthetic fly-to-the-ground camera path",
	Long: `run wires a scheduler up to a small, hardcoded sequence of camera
positions descending toward the origin, logging every tileRequested,
tileReady, tileExpired and cancelTileRequest event as it fires. There
is no real network fetch: every tileRequested is immediately answered
with a zero-byte payload so the pairing/promotion machinery can be
observed end to end.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("steps", 4, "Number of descending camera steps to simulate")
	if err := viper.BindPFlag("run.steps", runCmd.Flags().Lookup("steps")); err != nil {
		panic(fmt.Sprintf("failed to bind flag: %v", err))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	heightPattern, err := cfg.TileLoad.Pattern()
	if err != nil {
		return err
	}
	heightTemplate := tileload.NewTemplate(cfg.TileLoad.HeightBaseURL, heightPattern, cfg.TileLoad.FileEnding)
	orthoTemplate := tileload.NewTemplate(cfg.TileLoad.OrthoBaseURL, heightPattern, cfg.TileLoad.FileEnding)

	bus := events.NewBus()
	sched := scheduler.New(bus, scheduler.Config{Visibility: cfg.Visibility.ToCamera()})

	bus.OnTileRequested(func(e events.TileRequested) {
		url := heightTemplate.BuildURL(e.TileID)
		if e.Side.String() == "ortho" {
			url = orthoTemplate.BuildURL(e.TileID)
		}
		logger.Info("tile requested", "tile", e.TileID.String(), "side", e.Side.String(), "url", url)
		// Synthetic immediate response: no real network fetch (out of scope).
		if e.Side.String() == "height" {
			sched.ReceiveHeightTile(e.TileID, []byte{})
		} else {
			sched.ReceiveOrthoTile(e.TileID, []byte{})
		}
	})
	bus.OnTileReady(func(e events.TileReady) {
		logger.Info("tile ready", "tile", e.Tile.ID.String())
	})
	bus.OnTileExpired(func(e events.TileExpired) {
		logger.Info("tile expired", "tile", e.TileID.String())
	})
	bus.OnCancelTileRequest(func(e events.CancelTileRequest) {
		logger.Info("tile request cancelled", "tile", e.TileID.String())
	})

	steps := viper.GetInt("run.steps")
	if steps < 1 {
		steps = 1
	}

	rootBounds := srs.Bounds(srs.Root())
	rootWidth := rootBounds.Max[0] - rootBounds.Min[0]
	for i := 0; i < steps; i++ {
		// Halve the camera's altitude every step: each step roughly
		// doubles every visible tile's screen-space error, nudging the
		// scheduler one level deeper.
		height := rootWidth / float64(int(1)<<uint(i+1))
		cam := camera.State{
			Position:       [3]float64{0, 0, height},
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			ClippingPlanes: camera.PermissivePlanes(),
		}
		sched.UpdateCamera(cam)
		logger.Info("camera step complete",
			"step", i,
			"height", height,
			"in_transit", sched.NumberOfTilesInTransit(),
			"gpu_tiles", len(sched.GpuTiles()),
		)
	}

	if err := sched.CheckConsistency(); err != nil {
		return fmt.Errorf("final consistency check failed: %w", err)
	}
	logger.Info("run complete", "gpu_tiles", len(sched.GpuTiles()))
	return nil
}
