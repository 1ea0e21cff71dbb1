package loader

import (
	"bufio"
	"io"
	"log"
	"strings"

	"github.com/sarchlab/pagesim/mem/vm"
)

const (
	pageNumberFormatDirective = "page number format"
	entryFormatDirective      = "entry format"
)

// LoadPageTable reads a page-table file. The file may start with the
// directives "page number format = <fmt>" and "entry format = <fmt>"
// (hex by default), followed by "<vpn> <raw entry>" lines. Malformed lines
// are logged and skipped.
func LoadPageTable(path string, codec vm.ControlBitCodec) (vm.PageTable, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParsePageTable(f, codec)
}

// ParsePageTable is LoadPageTable for tables that are not stored in a file.
func ParsePageTable(r io.Reader, codec vm.ControlBitCodec) (vm.PageTable, error) {
	p := pageTableParser{
		table:       vm.NewPageTable(),
		codec:       codec,
		vpnFormat:   FormatHex,
		entryFormat: FormatHex,
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		p.lineNo++
		p.parseLine(strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return p.table, nil
}

type pageTableParser struct {
	table       vm.PageTable
	codec       vm.ControlBitCodec
	vpnFormat   Format
	entryFormat Format
	lineNo      int
}

func (p *pageTableParser) parseLine(line string) {
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	if name, value, ok := strings.Cut(line, "="); ok {
		p.parseDirective(line, strings.TrimSpace(name), value)
		return
	}

	fields := strings.Fields(line)
	if len(fields) != 2 {
		p.warn(line, "expected \"<page> <entry>\"")
		return
	}

	vpn, err := ParseAddress(fields[0], p.vpnFormat)
	if err != nil {
		p.warn(line, err.Error())
		return
	}

	raw, err := ParseAddress(fields[1], p.entryFormat)
	if err != nil {
		p.warn(line, err.Error())
		return
	}

	p.table.Update(vpn, p.codec.Entry(raw))
}

func (p *pageTableParser) parseDirective(line, name, value string) {
	format, err := ParseFormat(value)
	if err != nil {
		p.warn(line, err.Error())
		return
	}

	switch strings.ToLower(name) {
	case pageNumberFormatDirective:
		p.vpnFormat = format
	case entryFormatDirective:
		p.entryFormat = format
	default:
		p.warn(line, "unknown directive")
	}
}

func (p *pageTableParser) warn(line, reason string) {
	log.Printf("page table line %d: ignoring %q: %s", p.lineNo, line, reason)
}
