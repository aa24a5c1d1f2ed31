package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/CK6170/Dishrunrilla-go/internal/site"
	"github.com/CK6170/Dishrunrilla-go/internal/telemetry"
	"github.com/CK6170/Dishrunrilla-go/models"
	"github.com/CK6170/Dishrunrilla-go/modern"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

type screen int

const (
	screenEntry screen = iota
	screenCalibration
	screenVerify
	screenTrack
)

type modeStatus int

const (
	statusIdle modeStatus = iota
	statusRunning
	statusDone
	statusError
)

const gpsTimeout = 10 * time.Second

// program receives progress messages sent from running commands.
var program *tea.Program

type model struct {
	scr screen

	// entry
	configInput textinput.Model
	modelInput  textinput.Model

	configPath string

	// connection
	sess     *modern.Session
	pub      telemetry.Publisher
	lastErr  error
	infoLine string

	// calibration state
	calSteps   []modern.CalStep
	calStepIdx int
	calAgg     *modern.Aggregator
	calStatus  modeStatus
	calLast    *models.SearchResult
	calModel   *models.PointingModel

	// verify state
	verifyStatus  modeStatus
	verifyReport  *modern.VerifyReport
	verifySamples []modern.VerifySample

	// track state
	trackStatus modeStatus
	trackProg   modern.TrackProgress

	// cancellation for long-running mode work
	modeCtx     context.Context
	modeCancel  context.CancelFunc
	calRunID    int
	verifyRunID int
	trackRunID  int
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func initialModel() model {
	in := textinput.New()
	in.Placeholder = "Path to station parameters (.json/.yaml)"
	in.Focus()
	in.CharLimit = 512
	in.Width = 60

	mi := textinput.New()
	mi.Placeholder = "Path to _pointing.json"
	mi.CharLimit = 512
	mi.Width = 60

	m := model{
		scr:         screenEntry,
		configInput: in,
		modelInput:  mi,
		pub:         telemetry.Nop{},
	}
	// support passing config path as arg
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		m.configInput.SetValue(os.Args[1])
		m.configInput.CursorEnd()
	}
	return m
}

type errMsg struct{ err error }
type connectedMsg struct {
	sess       *modern.Session
	pub        telemetry.Publisher
	version    string
	configPath string
}
type disconnectedMsg struct{}

type calStepDoneMsg struct {
	runID int
	obs   models.CalibrationObservation
	res   models.SearchResult
}
type calSolvedMsg struct {
	runID int
	model models.PointingModel
	path  string
}

type verifyDoneMsg struct {
	runID   int
	report  *modern.VerifyReport
	samples []modern.VerifySample
}

type trackProgMsg struct {
	runID int
	p     modern.TrackProgress
}
type trackDoneMsg struct{ runID int }

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			_ = m.disconnect()
			return m, tea.Quit
		}

		switch m.scr {
		case screenEntry:
			return m.updateEntryKey(msg)
		case screenCalibration:
			return m.updateCalibrationKey(msg)
		case screenVerify:
			return m.updateVerifyKey(msg)
		case screenTrack:
			return m.updateTrackKey(msg)
		}

	case errMsg:
		m.lastErr = msg.err
		// move mode statuses to error if currently running
		switch m.scr {
		case screenCalibration:
			m.calStatus = statusError
		case screenVerify:
			m.verifyStatus = statusError
		case screenTrack:
			m.trackStatus = statusError
		}
		return m, nil

	case connectedMsg:
		m.sess = msg.sess
		m.pub = msg.pub
		m.configPath = msg.configPath
		m.modelInput.SetValue(modern.CalibratedPath(msg.configPath))
		m.infoLine = fmt.Sprintf("Connected to %s on %s (%d targets)", msg.version, m.sess.Params.POSITIONER.PORT, len(m.sess.Params.TARGETS))
		m.lastErr = nil
		return m, nil

	case disconnectedMsg:
		m.sess = nil
		m.infoLine = "Disconnected"
		return m, nil

	case calStepDoneMsg:
		if msg.runID != m.calRunID {
			return m, nil
		}
		res := msg.res
		m.calLast = &res
		if err := m.calAgg.Record(msg.obs); err != nil {
			m.calStatus = statusError
			m.lastErr = err
			return m, nil
		}
		if err := m.pub.PublishSearch(msg.obs, msg.res); err != nil {
			m.infoLine = "telemetry: " + err.Error()
		}
		m.calStepIdx++
		m.calStatus = statusIdle
		return m, nil

	case calSolvedMsg:
		if msg.runID != m.calRunID {
			return m, nil
		}
		solved := msg.model
		m.calModel = &solved
		m.calStatus = statusDone
		m.modelInput.SetValue(msg.path)
		m.infoLine = "Pointing model saved to " + msg.path
		return m, nil

	case verifyDoneMsg:
		if msg.runID != m.verifyRunID {
			return m, nil
		}
		m.verifyReport = msg.report
		m.verifySamples = msg.samples
		m.verifyStatus = statusDone
		return m, nil

	case trackProgMsg:
		if msg.runID != m.trackRunID {
			return m, nil
		}
		m.trackProg = msg.p
		return m, nil

	case trackDoneMsg:
		if msg.runID != m.trackRunID {
			return m, nil
		}
		m.trackStatus = statusDone
		m.scr = screenEntry
		m.infoLine = "Track complete."
		return m, nil
	}

	// default: let inputs update
	switch m.scr {
	case screenEntry:
		var cmd tea.Cmd
		m.configInput, cmd = m.configInput.Update(msg)
		return m, cmd
	case screenVerify, screenTrack:
		var cmd tea.Cmd
		m.modelInput, cmd = m.modelInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Dishrunrilla Modern UI") + "\n")
	b.WriteString(helpStyle.Render("Ctrl+C to quit. 'b' to go back from a mode.") + "\n\n")
	if m.infoLine != "" {
		b.WriteString(okStyle.Render(m.infoLine) + "\n")
	}
	if m.lastErr != nil {
		b.WriteString(errStyle.Render("Error: "+m.lastErr.Error()) + "\n")
	}
	b.WriteString("\n")

	switch m.scr {
	case screenEntry:
		b.WriteString(m.viewEntry())
	case screenCalibration:
		b.WriteString(m.viewCalibration())
	case screenVerify:
		b.WriteString(m.viewVerify())
	case screenTrack:
		b.WriteString(m.viewTrack())
	}
	return b.String()
}

func (m model) viewEntry() string {
	var b strings.Builder
	b.WriteString("Station parameters:\n")
	b.WriteString(m.configInput.View() + "\n\n")
	if m.sess == nil {
		b.WriteString(helpStyle.Render("Enter a parameters path then press Enter to connect.") + "\n")
		return b.String()
	}
	b.WriteString(okStyle.Render("Connected.") + "\n\n")
	b.WriteString("Select mode:\n")
	b.WriteString("  1) Calibration (spiral scans + model fit)\n")
	b.WriteString("  2) Verify (signal at corrected directions)\n")
	b.WriteString("  3) Track targets with _pointing.json\n\n")
	b.WriteString(helpStyle.Render("Press 1/2/3 to start. Press d to disconnect.") + "\n")
	return b.String()
}

func (m model) viewCalibration() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Calibration") + "\n\n")
	if m.sess == nil {
		b.WriteString(errStyle.Render("Not connected.") + "\n")
		return b.String()
	}
	if len(m.calSteps) == 0 {
		b.WriteString("Preparing...\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("Observations: %d\n", m.calAgg.Len()))
	if m.calLast != nil {
		b.WriteString(fmt.Sprintf("Last scan: best offset AZ %+.3f EL %+.3f, %.2f dB (%d samples, %d invalid)\n",
			m.calLast.BestOffset.Az, m.calLast.BestOffset.El, m.calLast.BestStrength, m.calLast.Samples, m.calLast.Invalid))
	}
	b.WriteString("\n")
	if m.calModel != nil {
		b.WriteString(formatModel(*m.calModel))
		b.WriteString(helpStyle.Render("Press b to go back.") + "\n")
		return b.String()
	}
	step := m.calSteps[m.calStepIdx]
	b.WriteString(step.Label + " " + step.Prompt + "\n\n")
	if m.calStatus == statusRunning {
		b.WriteString("Working...\n")
	} else {
		b.WriteString(helpStyle.Render("Press Enter to start this step, s to skip. Press b to go back.") + "\n")
	}
	return b.String()
}

func formatModel(pm models.PointingModel) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("AZ0  %+.4f   AN   %+.4f   AC     %+.4f   COLL %+.4f\n", pm.AZ0, pm.AN, pm.AC, pm.COLL))
	b.WriteString(fmt.Sprintf("EL0  %+.4f   GRAV %+.4f   EL_LIN %+.4f\n", pm.EL0, pm.GRAV, pm.ELLIN))
	b.WriteString(fmt.Sprintf("RMS residual %.4f deg, rank %d, %d observations\n", pm.RMSResidual, pm.Rank, pm.Observations))
	if pm.Degenerate() {
		b.WriteString(warnStyle.Render("Rank deficient fit: add observations spread in azimuth and elevation.") + "\n")
	}
	return b.String()
}

func (m model) viewVerify() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Verify") + "\n\n")
	b.WriteString("Pointing model:\n")
	b.WriteString(m.modelInput.View() + "\n\n")
	switch m.verifyStatus {
	case statusRunning:
		b.WriteString("Measuring...\n")
	case statusDone:
		if m.verifyReport != nil {
			b.WriteString(fmt.Sprintf("Fit residual RMS %.4f deg, max %.4f deg\n\n", m.verifyReport.RMS, m.verifyReport.MaxAbs))
		}
		for _, s := range m.verifySamples {
			b.WriteString(fmt.Sprintf("  %-16s AZ %8.3f EL %7.3f  %8.2f dB\n", s.Target, s.Corrected.Az, s.Corrected.El, s.Strength))
		}
		b.WriteString("\n" + helpStyle.Render("Press Enter to measure again. Press b to go back.") + "\n")
	default:
		b.WriteString(helpStyle.Render("Press Enter to point at each target through the model and read the signal.") + "\n")
	}
	return b.String()
}

func (m model) viewTrack() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Track") + "\n\n")
	b.WriteString("Pointing model:\n")
	b.WriteString(m.modelInput.View() + "\n\n")
	if m.trackStatus == statusRunning {
		p := m.trackProg
		b.WriteString(fmt.Sprintf("[%s] #%d commanded AZ %.3f EL %.3f -> AZ %.3f EL %.3f %s\n",
			p.Stage, p.Index+1, p.Commanded.Az, p.Commanded.El, p.Corrected.Az, p.Corrected.El, p.Message))
	} else {
		b.WriteString(helpStyle.Render("Press Enter to visit every target with model corrections. Press b to go back.") + "\n")
	}
	return b.String()
}

func (m *model) disconnect() error {
	m.stopMode()
	if m.sess != nil {
		_ = m.sess.Close()
		m.sess = nil
	}
	if m.pub != nil {
		m.pub.Close()
		m.pub = telemetry.Nop{}
	}
	return nil
}

func (m model) updateEntryKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "enter":
		if m.sess == nil {
			path := strings.TrimSpace(m.configInput.Value())
			if path == "" {
				return m, func() tea.Msg { return errMsg{err: fmt.Errorf("parameters path is empty")} }
			}
			return m, m.connectCmd(path)
		}
		return m, nil
	case "1":
		if m.sess == nil {
			return m, nil
		}
		m.stopMode()
		m.calRunID++
		m.modeCtx, m.modeCancel = context.WithCancel(context.Background())
		m.scr = screenCalibration
		m.calStatus = statusIdle
		m.calStepIdx = 0
		m.calAgg = modern.NewAggregator()
		m.calLast = nil
		m.calModel = nil
		steps, err := modern.BuildCalibrationPlan(m.sess.Params)
		if err != nil {
			return m, func() tea.Msg { return errMsg{err: err} }
		}
		m.calSteps = steps
		return m, nil
	case "2", "3":
		if m.sess == nil {
			return m, nil
		}
		m.stopMode()
		m.modeCtx, m.modeCancel = context.WithCancel(context.Background())
		if k.String() == "2" {
			m.verifyRunID++
			m.scr = screenVerify
			m.verifyStatus = statusIdle
			m.verifyReport = nil
			m.verifySamples = nil
		} else {
			m.trackRunID++
			m.scr = screenTrack
			m.trackStatus = statusIdle
		}
		if strings.TrimSpace(m.modelInput.Value()) == "" && m.configPath != "" {
			m.modelInput.SetValue(modern.CalibratedPath(m.configPath))
		}
		m.modelInput.Focus()
		m.modelInput.CursorEnd()
		return m, nil
	case "d":
		_ = m.disconnect()
		return m, func() tea.Msg { return disconnectedMsg{} }
	}

	var cmd tea.Cmd
	m.configInput, cmd = m.configInput.Update(k)
	return m, cmd
}

func (m model) updateCalibrationKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "b":
		m.stopMode()
		m.calRunID++
		m.scr = screenEntry
		m.calStatus = statusIdle
		return m, nil
	case "s":
		if m.calStatus == statusRunning || m.calStepIdx >= len(m.calSteps) {
			return m, nil
		}
		if m.calSteps[m.calStepIdx].Kind == modern.CalStepScan {
			m.calStepIdx++
		}
		return m, nil
	case "enter":
		if m.calStatus == statusRunning || m.calModel != nil {
			return m, nil
		}
		if m.sess == nil {
			return m, func() tea.Msg { return errMsg{err: fmt.Errorf("not connected")} }
		}
		if m.calStepIdx >= len(m.calSteps) {
			return m, nil
		}
		step := m.calSteps[m.calStepIdx]
		m.calStatus = statusRunning
		m.lastErr = nil
		if step.Kind == modern.CalStepSolve {
			return m, m.solveCmd(m.calRunID, m.calAgg.Snapshot())
		}
		return m, m.runCalibrationStepCmd(m.modeCtx, m.calRunID, step)
	}
	return m, nil
}

func (m model) updateVerifyKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "b":
		m.stopMode()
		m.verifyRunID++
		m.scr = screenEntry
		m.verifyStatus = statusIdle
		return m, nil
	case "enter":
		if m.verifyStatus == statusRunning {
			return m, nil
		}
		if m.sess == nil {
			return m, func() tea.Msg { return errMsg{err: fmt.Errorf("not connected")} }
		}
		path := strings.TrimSpace(m.modelInput.Value())
		if path == "" {
			return m, func() tea.Msg { return errMsg{err: fmt.Errorf("pointing model path is empty")} }
		}
		m.verifyStatus = statusRunning
		return m, m.verifyCmd(m.modeCtx, m.verifyRunID, path)
	}
	var cmd tea.Cmd
	m.modelInput, cmd = m.modelInput.Update(k)
	return m, cmd
}

func (m model) updateTrackKey(k tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch k.String() {
	case "b":
		m.stopMode()
		m.trackRunID++
		m.scr = screenEntry
		m.trackStatus = statusIdle
		return m, nil
	case "enter":
		if m.trackStatus == statusRunning {
			return m, nil
		}
		if m.sess == nil {
			return m, func() tea.Msg { return errMsg{err: fmt.Errorf("not connected")} }
		}
		path := strings.TrimSpace(m.modelInput.Value())
		if path == "" {
			return m, func() tea.Msg { return errMsg{err: fmt.Errorf("pointing model path is empty")} }
		}
		m.trackStatus = statusRunning
		return m, m.trackCmd(m.modeCtx, m.trackRunID, path)
	}
	var cmd tea.Cmd
	m.modelInput, cmd = m.modelInput.Update(k)
	return m, cmd
}

func (m *model) stopMode() {
	if m.modeCancel != nil {
		m.modeCancel()
		m.modeCancel = nil
	}
	m.modeCtx = nil
}

func (m model) connectCmd(path string) tea.Cmd {
	return func() tea.Msg {
		p, err := modern.LoadParameters(path)
		if err != nil {
			return errMsg{err: err}
		}
		_, err = modern.EnsureSerialPort(path, p, true)
		if err != nil {
			return errMsg{err: err}
		}
		sess, err := modern.Connect(p)
		if err != nil {
			return errMsg{err: err}
		}
		version, err := modern.ProbeVersion(sess)
		if err != nil {
			_ = sess.Close()
			return errMsg{err: err}
		}
		pub, err := telemetry.New(p.MQTT)
		if err != nil {
			_ = sess.Close()
			return errMsg{err: err}
		}
		return connectedMsg{sess: sess, pub: pub, version: version, configPath: path}
	}
}

func (m model) runCalibrationStepCmd(ctx context.Context, runID int, step modern.CalStep) tea.Cmd {
	return func() tea.Msg {
		if m.sess == nil {
			return errMsg{err: fmt.Errorf("not connected")}
		}
		if ctx == nil {
			return errMsg{err: fmt.Errorf("mode context not set")}
		}
		obs, res, err := modern.ScanTarget(ctx, m.sess, step, nil)
		if err != nil {
			if errors.Is(err, models.ErrNoValidReadings) {
				return errMsg{err: fmt.Errorf("%s: no signal along the spiral, press s to skip: %w", step.Target.NAME, err)}
			}
			return errMsg{err: err}
		}
		return calStepDoneMsg{runID: runID, obs: obs, res: res}
	}
}

func (m model) solveCmd(runID int, set models.CalibrationSet) tea.Cmd {
	return func() tea.Msg {
		if m.sess == nil {
			return errMsg{err: fmt.Errorf("not connected")}
		}
		pm, err := modern.SolvePointingModel(set)
		if err != nil {
			return errMsg{err: err}
		}
		var fix *models.Fix
		if m.sess.Params.GPS != nil {
			// Site fix is optional; a missing GPS never blocks saving.
			fix, _ = site.Locate(context.Background(), m.sess.Params.GPS, gpsTimeout)
		}
		path := modern.CalibratedPath(m.configPath)
		if err := modern.SaveModelJSON(path, pm, set, fix); err != nil {
			return errMsg{err: err}
		}
		_ = m.pub.PublishModel(pm)
		return calSolvedMsg{runID: runID, model: pm, path: path}
	}
}

func (m model) verifyCmd(ctx context.Context, runID int, path string) tea.Cmd {
	return func() tea.Msg {
		if m.sess == nil {
			return errMsg{err: fmt.Errorf("not connected")}
		}
		if ctx == nil {
			return errMsg{err: fmt.Errorf("mode context not set")}
		}
		pf, err := modern.LoadModelJSON(path)
		if err != nil {
			return errMsg{err: err}
		}
		var report *modern.VerifyReport
		if len(pf.OBSERVATIONS) > 0 {
			r, err := modern.VerifyModel(pf.MODEL, pf.OBSERVATIONS)
			if err != nil {
				return errMsg{err: err}
			}
			report = &r
		}
		samples := make([]modern.VerifySample, 0, len(m.sess.Params.TARGETS))
		for _, t := range m.sess.Params.TARGETS {
			s, err := modern.MeasureCorrected(ctx, m.sess, pf.MODEL, t)
			if err != nil {
				return errMsg{err: fmt.Errorf("%s: %w", t.NAME, err)}
			}
			samples = append(samples, s)
		}
		return verifyDoneMsg{runID: runID, report: report, samples: samples}
	}
}

func (m model) trackCmd(ctx context.Context, runID int, path string) tea.Cmd {
	return func() tea.Msg {
		if m.sess == nil {
			return errMsg{err: fmt.Errorf("not connected")}
		}
		if ctx == nil {
			return errMsg{err: fmt.Errorf("mode context not set")}
		}
		pf, err := modern.LoadModelJSON(path)
		if err != nil {
			return errMsg{err: err}
		}
		dirs := make([]models.Direction, 0, len(m.sess.Params.TARGETS))
		for _, t := range m.sess.Params.TARGETS {
			dirs = append(dirs, t.Direction())
		}
		opts := modern.TrackOptionsFrom(m.sess.Params)
		onProgress := func(p modern.TrackProgress) {
			if program != nil {
				program.Send(trackProgMsg{runID: runID, p: p})
			}
		}
		if err := modern.TrackCorrected(ctx, m.sess.Positioner, pf.MODEL, dirs, opts, onProgress); err != nil {
			return errMsg{err: err}
		}
		return trackDoneMsg{runID: runID}
	}
}

func main() {
	program = tea.NewProgram(initialModel(), tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}
