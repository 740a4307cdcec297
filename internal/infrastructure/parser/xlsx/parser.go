package xlsx

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/dialerops/report-pipeline/internal/core/domain"
)

// Parser decodes one binary dialer export into its typed form. Category and
// covered date range come from the filename via the catalog; rows come from
// the first worksheet, with columns resolved by header name.
type Parser struct {
	catalog *domain.Catalog
}

func NewParser(catalog *domain.Catalog) *Parser {
	return &Parser{catalog: catalog}
}

func (p *Parser) Parse(content []byte, filename string) (*domain.ParsedReport, error) {
	base := filepath.Base(filename)

	category, ok := p.catalog.MatchFilename(base)
	if !ok {
		return nil, domain.WrapError(domain.ErrUnrecognizedFormat, "detect category",
			fmt.Errorf("no catalog pattern matches %q", base))
	}

	start, end, err := category.DateRange(base)
	if err != nil {
		return nil, domain.WrapError(domain.ErrUnparsableDate, "extract date range", err)
	}

	workbook, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedContent, "open workbook", err)
	}
	defer workbook.Close()

	sheet := workbook.GetSheetName(0)
	rows, err := workbook.GetRows(sheet)
	if err != nil {
		return nil, domain.WrapError(domain.ErrMalformedContent, "read sheet", err)
	}
	if len(rows) == 0 {
		return nil, domain.WrapError(domain.ErrMalformedContent, "read sheet",
			fmt.Errorf("sheet %q has no header row", sheet))
	}

	report := &domain.ParsedReport{
		Category:   category.Key,
		Kind:       category.Kind,
		ReportDate: end,
		RangeStart: start,
		RangeEnd:   end,
	}

	header := newHeaderIndex(rows[0])
	if err := decodeRows(report, category, header, rows[1:]); err != nil {
		return nil, err
	}
	return report, nil
}

func decodeRows(report *domain.ParsedReport, category *domain.Category, header headerIndex, rows [][]string) error {
	switch category.Kind {
	case domain.KindAgent:
		return decodeAgentRows(report, category, header, rows)
	case domain.KindSkill:
		return decodeSkillRows(report, category, header, rows)
	case domain.KindCall:
		return decodeCallRows(report, category, header, rows)
	case domain.KindCampaign:
		return decodeCampaignRows(report, category, header, rows)
	default:
		return domain.WrapError(domain.ErrMalformedContent, "decode rows",
			fmt.Errorf("category %s has unknown row kind %q", category.Key, category.Kind))
	}
}

func decodeAgentRows(report *domain.ParsedReport, category *domain.Category, header headerIndex, rows [][]string) error {
	agentCol, ok := header.find("agent_id", "agent", "rep_id")
	if !ok {
		return missingColumn(category, "agent_id")
	}
	nameCol, _ := header.find("agent_name", "name")
	skillCol, _ := header.find("skill", "queue")
	dialsCol, _ := header.find("dials", "calls")
	connectsCol, _ := header.find("connects", "contacts")
	transfersCol, _ := header.find("transfers", "xfers")
	hoursCol, _ := header.find("hours", "man_hours", "login_hours")

	for i, row := range rows {
		if rowEmpty(row) {
			continue
		}
		agentID := strings.TrimSpace(cell(row, agentCol))
		if agentID == "" {
			continue
		}

		dials, err := intCell(row, dialsCol, category, i)
		if err != nil {
			return err
		}
		connects, err := intCell(row, connectsCol, category, i)
		if err != nil {
			return err
		}
		transfers, err := intCell(row, transfersCol, category, i)
		if err != nil {
			return err
		}
		hours, err := floatCell(row, hoursCol, category, i)
		if err != nil {
			return err
		}

		report.AgentRows = append(report.AgentRows, domain.AgentRow{
			AgentID:   agentID,
			AgentName: strings.TrimSpace(cell(row, nameCol)),
			Skill:     strings.TrimSpace(cell(row, skillCol)),
			Dials:     dials,
			Connects:  connects,
			Transfers: transfers,
			Hours:     hours,
		})
	}
	return nil
}

func decodeSkillRows(report *domain.ParsedReport, category *domain.Category, header headerIndex, rows [][]string) error {
	skillCol, ok := header.find("skill", "queue")
	if !ok {
		return missingColumn(category, "skill")
	}
	transfersCol, _ := header.find("transfers", "xfers")
	agentsCol, _ := header.find("agents", "agent_count")
	hoursCol, _ := header.find("hours", "man_hours")

	for i, row := range rows {
		if rowEmpty(row) {
			continue
		}
		skill := strings.TrimSpace(cell(row, skillCol))
		if skill == "" {
			continue
		}

		transfers, err := intCell(row, transfersCol, category, i)
		if err != nil {
			return err
		}
		agents, err := intCell(row, agentsCol, category, i)
		if err != nil {
			return err
		}
		hours, err := floatCell(row, hoursCol, category, i)
		if err != nil {
			return err
		}

		report.SkillRows = append(report.SkillRows, domain.SkillRow{
			Skill:     skill,
			Transfers: transfers,
			Agents:    agents,
			Hours:     hours,
		})
	}
	return nil
}

func decodeCallRows(report *domain.ParsedReport, category *domain.Category, header headerIndex, rows [][]string) error {
	campaignCol, hasCampaign := header.find("campaign")
	agentCol, hasAgent := header.find("agent_id", "agent")
	if !hasCampaign && !hasAgent {
		return missingColumn(category, "campaign or agent_id")
	}
	skillCol, _ := header.find("skill", "queue")
	dispositionCol, hasDisposition := header.find("disposition", "disp")
	transferredCol, hasTransferred := header.find("transferred", "transfer", "xfer")

	for _, row := range rows {
		if rowEmpty(row) {
			continue
		}

		disposition := strings.TrimSpace(cell(row, dispositionCol))
		transferred := false
		switch {
		case hasTransferred:
			transferred = truthy(cell(row, transferredCol))
		case hasDisposition:
			transferred = isTransferDisposition(disposition)
		}

		report.CallRows = append(report.CallRows, domain.CallRow{
			Campaign:    strings.TrimSpace(cell(row, campaignCol)),
			Skill:       strings.TrimSpace(cell(row, skillCol)),
			AgentID:     strings.TrimSpace(cell(row, agentCol)),
			Disposition: disposition,
			Transferred: transferred,
		})
	}
	return nil
}

func decodeCampaignRows(report *domain.ParsedReport, category *domain.Category, header headerIndex, rows [][]string) error {
	campaignCol, ok := header.find("campaign")
	if !ok {
		return missingColumn(category, "campaign")
	}
	dialsCol, _ := header.find("dials", "calls")
	connectsCol, _ := header.find("system_connects", "sys_connects", "connects")

	for i, row := range rows {
		if rowEmpty(row) {
			continue
		}
		campaign := strings.TrimSpace(cell(row, campaignCol))
		if campaign == "" {
			continue
		}

		dials, err := intCell(row, dialsCol, category, i)
		if err != nil {
			return err
		}
		connects, err := intCell(row, connectsCol, category, i)
		if err != nil {
			return err
		}

		report.CampaignRows = append(report.CampaignRows, domain.CampaignRow{
			Campaign:       campaign,
			Dials:          dials,
			SystemConnects: connects,
		})
	}
	return nil
}

// headerIndex maps normalized header names to column positions.
type headerIndex map[string]int

func newHeaderIndex(header []string) headerIndex {
	idx := make(headerIndex, len(header))
	for i, name := range header {
		key := normalizeHeader(name)
		if key == "" {
			continue
		}
		if _, seen := idx[key]; !seen {
			idx[key] = i
		}
	}
	return idx
}

func (h headerIndex) find(names ...string) (int, bool) {
	for _, name := range names {
		if col, ok := h[name]; ok {
			return col, true
		}
	}
	return -1, false
}

func normalizeHeader(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}

func rowEmpty(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func intCell(row []string, col int, category *domain.Category, rowIdx int) (int, error) {
	raw := strings.TrimSpace(cell(row, col))
	if raw == "" {
		return 0, nil
	}
	raw = strings.ReplaceAll(raw, ",", "")
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int(f), nil
	}
	return 0, domain.WrapError(domain.ErrMalformedContent, "decode rows",
		fmt.Errorf("category %s row %d: %q is not a number", category.Key, rowIdx+2, raw))
}

func floatCell(row []string, col int, category *domain.Category, rowIdx int) (float64, error) {
	raw := strings.TrimSpace(cell(row, col))
	if raw == "" {
		return 0, nil
	}
	raw = strings.ReplaceAll(raw, ",", "")
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.WrapError(domain.ErrMalformedContent, "decode rows",
			fmt.Errorf("category %s row %d: %q is not a number", category.Key, rowIdx+2, raw))
	}
	return f, nil
}

func truthy(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "x", "t":
		return true
	default:
		return false
	}
}

func isTransferDisposition(disposition string) bool {
	switch strings.ToUpper(strings.TrimSpace(disposition)) {
	case "XFER", "TRANSFER", "TRANSFERRED":
		return true
	default:
		return false
	}
}

func missingColumn(category *domain.Category, column string) error {
	return domain.WrapError(domain.ErrMalformedContent, "decode rows",
		fmt.Errorf("category %s: required column %s not found", category.Key, column))
}
