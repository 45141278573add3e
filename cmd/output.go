// Copyright 2025 The MedMatch Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/medmatch/medmatch/provider"
	"github.com/medmatch/medmatch/settings"
)

func pad(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n > width {
		r := []rune(s)

		return string(r[:width-1]) + "…"
	}

	return s + strings.Repeat(" ", width-n)
}

func scoreColumn(s provider.Score) string {
	text := pad(s.String(), 5)

	switch {
	case !s.Scored():
		return color.New(color.Faint).Sprint(text)
	case s >= 8:
		return color.GreenString(text)
	case s >= 5:
		return color.YellowString(text)
	default:
		return color.RedString(text)
	}
}

func distanceColumn(d *float64) string {
	if d == nil {
		return pad("-", 9)
	}

	return pad(fmt.Sprintf("%.1f mi", *d), 9)
}

func printProviders(w io.Writer, ranked []provider.RankedProvider) {
	if len(ranked) == 0 {
		fmt.Fprintln(w, color.YellowString("No providers found."))

		return
	}

	bold := color.New(color.Bold)
	bold.Fprintf(w, "%s %s %s %s %s %s\n",
		pad("ID", 6), pad("NAME", 30), pad("SPECIALTY", 18), pad("SCORE", 5), pad("DISTANCE", 9), "PHONE")

	for _, r := range ranked {
		fmt.Fprintf(w, "%s %s %s %s %s %s\n",
			pad(r.ID, 6), pad(r.Name, 30), pad(r.Specialty, 18),
			scoreColumn(r.Score), distanceColumn(r.Distance), r.Phone)
		fmt.Fprintf(w, "%s %s\n", pad("", 6), color.New(color.Faint).Sprint(addressLine(r.Address)))
	}
}

func addressLine(a provider.Address) string {
	var parts []string

	for _, s := range []string{a.Street, a.City, strings.TrimSpace(a.Region + " " + a.PostalCode)} {
		if s != "" {
			parts = append(parts, s)
		}
	}

	return strings.Join(parts, ", ")
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

func printSettings(w io.Writer, s settings.AppSettings) {
	row := func(key string, value any) {
		fmt.Fprintf(w, "%s %v\n", color.CyanString(pad(key, 24)), value)
	}

	str := func(p *string) string {
		if p == nil {
			return "-"
		}

		return *p
	}

	num := func(p *int) string {
		if p == nil {
			return "-"
		}

		return fmt.Sprint(*p)
	}

	push := "-"
	if s.PushNotifications != nil {
		push = fmt.Sprint(*s.PushNotifications)
	}

	row("push_notifications", push)
	row("age", num(s.Age))
	row("insurance_network", num(s.InsuranceNetwork))
	row("insurance_network_name", str(s.InsuranceNetworkName))
	row("insurance_plan", num(s.InsurancePlan))
	row("insurance_plan_name", str(s.InsurancePlanName))
	row("default_radius_miles", s.RadiusMiles())
	row("group_id", str(s.GroupID))
	row("member_id", str(s.MemberID))
	row("member_first_name", str(s.MemberFirstName))
	row("member_last_name", str(s.MemberLastName))
}

func printState(w io.Writer, st settings.State) {
	var phase string

	switch st.Phase {
	case settings.Confirmed:
		phase = color.GreenString(st.Phase.String())
	case settings.Reverted:
		phase = color.RedString(st.Phase.String())
	default:
		phase = color.YellowString(st.Phase.String())
	}

	if st.Err != nil {
		fmt.Fprintf(w, "[%s] %v\n", phase, st.Err)

		return
	}

	fmt.Fprintf(w, "[%s] radius %d mi\n", phase, st.Settings.RadiusMiles())
}
