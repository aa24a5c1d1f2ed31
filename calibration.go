package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CK6170/Dishrunrilla-go/internal/site"
	"github.com/CK6170/Dishrunrilla-go/internal/telemetry"
	"github.com/CK6170/Dishrunrilla-go/matrix"
	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"
	"github.com/CK6170/Dishrunrilla-go/ui"
)

var errAborted = errors.New("calibration aborted")

// runCalibration scans every configured target on key press, fits the
// pointing model and saves it next to the parameters file.
func runCalibration(configPath string, debugFlag bool) error {
	p, err := modern.LoadParameters(configPath)
	if err != nil {
		return err
	}
	debug := debugFlag || p.DEBUG
	debugPrintf(debug, "Loaded parameters: %s (%d targets)\n", configPath, len(p.TARGETS))

	if changed, err := modern.EnsureSerialPort(configPath, p, true); err != nil {
		return err
	} else if changed {
		greenPrintf("Positioner detected on %s (saved to %s)\n", p.POSITIONER.PORT, configPath)
	}

	sess, err := modern.Connect(p)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Close() }()
	version, err := modern.ProbeVersion(sess)
	if err != nil {
		return fmt.Errorf("positioner not answering: %w", err)
	}
	greenPrintf("Positioner %s on %s\n", version, p.POSITIONER.PORT)

	pub, err := telemetry.New(p.MQTT)
	if err != nil {
		warningPrintf("telemetry disabled: %v\n", err)
		pub = telemetry.Nop{}
	}
	defer pub.Close()

	steps, err := modern.BuildCalibrationPlan(p)
	if err != nil {
		return err
	}
	agg := modern.NewAggregator()
	ui.StartKeyEvents()

	for _, step := range steps {
		if step.Kind != modern.CalStepScan {
			continue
		}
		ui.DrainKeys()
		fmt.Printf("%s %s\n", step.Label, step.Prompt)
		switch ui.WaitKey(ui.KeyEnter, 's', ui.KeyEsc) {
		case ui.KeyEsc:
			return errAborted
		case 's':
			warningPrintf("Skipped %s\n", step.Target.NAME)
			continue
		}

		obs, res, err := scanWithAbort(sess, step, debug)
		switch {
		case errors.Is(err, context.Canceled):
			return errAborted
		case errors.Is(err, models.ErrNoValidReadings):
			warningPrintf("%s: no valid signal along the spiral, not recorded\n", step.Target.NAME)
			continue
		case err != nil:
			return err
		}
		if err := agg.Record(obs); err != nil {
			return err
		}
		if err := pub.PublishSearch(obs, res); err != nil {
			log.Printf("telemetry: %v", err)
		}
		greenPrintf("%s: peak at AZ %.3f EL %.3f (offset %+.3f %+.3f, %.2f dB, %d/%d valid)\n",
			step.Target.NAME, obs.Peak.Az, obs.Peak.El, res.BestOffset.Az, res.BestOffset.El,
			res.BestStrength, res.Samples-res.Invalid, res.Samples)
	}

	set := agg.Snapshot()
	if debug && len(set) > 0 {
		a, b := modern.BuildDesignMatrix(set)
		fmt.Println(matrix.MatrixLine)
		fmt.Print(a.String())
		fmt.Println(matrix.MatrixLine)
		debugPrintf(true, "b = %v\n", b.Values)
	}
	pm, err := modern.SolvePointingModel(set)
	if err != nil {
		return err
	}
	printModel(pm)
	if report, err := modern.VerifyModel(pm, set); err == nil {
		for _, r := range report.Residuals {
			fmt.Printf("  %-16s residual AZ %+.4f EL %+.4f\n", r.Target, r.Residual.Az, r.Residual.El)
		}
	}

	var fix *models.Fix
	if p.GPS != nil {
		fix, err = site.Locate(context.Background(), p.GPS, 10*time.Second)
		if err != nil {
			warningPrintf("no GPS fix: %v\n", err)
		}
	}
	out := modern.CalibratedPath(configPath)
	if err := modern.SaveModelJSON(out, pm, set, fix); err != nil {
		return err
	}
	if err := pub.PublishModel(pm); err != nil {
		log.Printf("telemetry: %v", err)
	}
	greenPrintf("Pointing model saved to %s\n", out)
	return nil
}

// scanWithAbort runs one target scan; Esc cancels it after the centre is measured.
func scanWithAbort(sess *modern.Session, step modern.CalStep, debug bool) (models.CalibrationObservation, models.SearchResult, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		keys := ui.StartKeyEvents()
		for {
			select {
			case <-ctx.Done():
				return
			case r, ok := <-keys:
				if !ok || r == ui.KeyEsc {
					cancel()
					return
				}
			}
		}
	}()
	return modern.ScanTarget(ctx, sess, step, func(s models.Sample) {
		if s.Valid {
			debugPrintf(debug, "#%03d offset %+.3f %+.3f  %.2f dB\n", s.Index, s.Offset.Az, s.Offset.El, s.Strength)
		} else {
			debugPrintf(debug, "#%03d offset %+.3f %+.3f  invalid\n", s.Index, s.Offset.Az, s.Offset.El)
		}
	})
}

func printModel(pm models.PointingModel) {
	clearScreen()
	fmt.Println(matrix.MatrixLine)
	greenPrintf("AZ0 %+.4f  AN %+.4f  AC %+.4f  COLL %+.4f\n", pm.AZ0, pm.AN, pm.AC, pm.COLL)
	greenPrintf("EL0 %+.4f  GRAV %+.4f  EL_LIN %+.4f\n", pm.EL0, pm.GRAV, pm.ELLIN)
	fmt.Printf("RMS residual %.4f deg, rank %d/%d, %d observations\n", pm.RMSResidual, pm.Rank, models.NumParams, pm.Observations)
	if pm.Degenerate() {
		warningPrintf("Rank deficient fit: parameters are a minimum-norm solution.\n")
	}
	fmt.Println(matrix.MatrixLine)
}
