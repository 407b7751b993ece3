package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Meter families supported by MeterReader, matching spec.md §6's "supported
// families and paths" list.
const (
	FamilyEMSinglePhase  = "em_single_phase"
	FamilyEMThreePhase   = "em_three_phase"
	FamilyEMThreePhasePro = "em_three_phase_pro"
	FamilyRelayGen1      = "relay_gen1"
	FamilyPlusSwitch     = "plus_switch"
)

// MeterReader polls the configured smart-meter HTTP endpoint and normalises
// the response to a signed grid-power float, positive for import. Adapted
// from 2d8a8152_lachlan2k-huawei-solar-mqtt-relay's typed-telemetry-struct
// style and automatedhome-solar's stdlib net/http usage, since no example
// ports the Shicky/Shelly HTTP meter APIs spec.md names directly.
type MeterReader struct {
	cfg    MeterConfig
	client *http.Client
}

// NewMeterReader builds a reader with a 10s request timeout per spec.md §5.
func NewMeterReader(cfg MeterConfig) *MeterReader {
	return &MeterReader{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

// Read performs one HTTP GET against the family-specific path and returns a
// normalised MeterReading.
func (r *MeterReader) Read(ctx context.Context) (MeterReading, error) {
	switch r.cfg.Family {
	case FamilyEMSinglePhase:
		return r.readEMSinglePhase(ctx)
	case FamilyEMThreePhase:
		return r.readEMThreePhase(ctx)
	case FamilyEMThreePhasePro:
		return r.readEMThreePhasePro(ctx)
	case FamilyRelayGen1:
		return r.readRelayGen1(ctx)
	case FamilyPlusSwitch:
		return r.readPlusSwitch(ctx)
	default:
		return MeterReading{}, fmt.Errorf("meter: unknown family %q", r.cfg.Family)
	}
}

func (r *MeterReader) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Endpoint+path, nil)
	if err != nil {
		return err
	}
	if r.cfg.Username != "" {
		req.SetBasicAuth(r.cfg.Username, r.cfg.Password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("meter: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("meter: %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("meter: decoding %s: %w", path, err)
	}
	return nil
}

// emeterResponse models a single-phase Shelly-style /emeter/<i> payload.
type emeterResponse struct {
	Power       float64 `json:"power"`
	PF          float64 `json:"pf"`
	Current     float64 `json:"current"`
	Voltage     float64 `json:"voltage"`
	TotalWh     float64 `json:"total"`
	TotalReturn float64 `json:"total_returned"`
}

func (r *MeterReader) readEMSinglePhase(ctx context.Context) (MeterReading, error) {
	var resp emeterResponse
	if err := r.get(ctx, "/emeter/0", &resp); err != nil {
		return MeterReading{}, err
	}
	return MeterReading{
		PowerW:        resp.Power,
		VoltageV:      resp.Voltage,
		CurrentA:      resp.Current,
		PowerFactor:   resp.PF,
		TotalImportWh: resp.TotalWh,
		TotalExportWh: resp.TotalReturn,
	}, nil
}

// statusResponse models the gen-1 /status shape shared by three-phase EM and
// relay-with-meter. Single-phase EM reads /emeter/0 only and has no /status
// fallback.
type statusResponse struct {
	TotalPower float64 `json:"total_power"`
	Meters     []struct {
		Power   float64 `json:"power"`
		PF      float64 `json:"pf"`
		Voltage float64 `json:"voltage"`
	} `json:"meters"`
}

func (r *MeterReader) readEMThreePhase(ctx context.Context) (MeterReading, error) {
	var resp statusResponse
	if err := r.get(ctx, "/status", &resp); err != nil {
		return MeterReading{}, err
	}
	reading := MeterReading{PowerW: resp.TotalPower}
	if len(resp.Meters) > 0 {
		reading.VoltageV = resp.Meters[0].Voltage
		reading.PowerFactor = resp.Meters[0].PF
	}
	return reading, nil
}

func (r *MeterReader) readRelayGen1(ctx context.Context) (MeterReading, error) {
	var resp statusResponse
	if err := r.get(ctx, "/status", &resp); err != nil {
		return MeterReading{}, err
	}
	if len(resp.Meters) == 0 {
		return MeterReading{}, fmt.Errorf("meter: relay_gen1 status had no meters entry")
	}
	return MeterReading{
		PowerW:      resp.Meters[0].Power,
		VoltageV:    resp.Meters[0].Voltage,
		PowerFactor: resp.Meters[0].PF,
	}, nil
}

// emStatusRPCResponse models the Gen2+ RPC EM.GetStatus response.
type emStatusRPCResponse struct {
	TotalActPower float64 `json:"total_act_power"`
	AVoltage      float64 `json:"a_voltage"`
	ACurrent      float64 `json:"a_current"`
	APF           float64 `json:"a_pf"`
	TotalAprtPwr  float64 `json:"total_aprt_power"`
}

func (r *MeterReader) readEMThreePhasePro(ctx context.Context) (MeterReading, error) {
	var resp emStatusRPCResponse
	if err := r.get(ctx, "/rpc/EM.GetStatus?id=0", &resp); err != nil {
		return MeterReading{}, err
	}
	return MeterReading{
		PowerW:      resp.TotalActPower,
		VoltageV:    resp.AVoltage,
		CurrentA:    resp.ACurrent,
		PowerFactor: resp.APF,
		ReactiveVAR: resp.TotalAprtPwr,
	}, nil
}

// switchStatusRPCResponse models the Gen2+ RPC Switch.GetStatus response.
type switchStatusRPCResponse struct {
	APower   float64 `json:"apower"`
	Voltage  float64 `json:"voltage"`
	Current  float64 `json:"current"`
	PF       float64 `json:"pf"`
	AEnergy  struct {
		Total float64 `json:"total"`
	} `json:"aenergy"`
}

func (r *MeterReader) readPlusSwitch(ctx context.Context) (MeterReading, error) {
	var resp switchStatusRPCResponse
	if err := r.get(ctx, "/rpc/Switch.GetStatus?id=0", &resp); err != nil {
		return MeterReading{}, err
	}
	return MeterReading{
		PowerW:        resp.APower,
		VoltageV:      resp.Voltage,
		CurrentA:      resp.Current,
		PowerFactor:   resp.PF,
		TotalImportWh: resp.AEnergy.Total,
	}, nil
}
