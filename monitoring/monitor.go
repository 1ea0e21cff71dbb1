// Package monitoring serves the state of MMUs over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sarchlab/pagesim/monitoring/web"
	"github.com/sarchlab/pagesim/sim"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

// Monitor turns a set of MMUs into a server that can be inspected and driven
// from a browser.
type Monitor struct {
	portNumber int

	mmusLock sync.Mutex
	mmus     []*mmu.Comp

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterMMU registers an MMU to be monitored.
func (m *Monitor) RegisterMMU(c *mmu.Comp) *Monitor {
	m.mmusLock.Lock()
	defer m.mmusLock.Unlock()

	m.mmus = append(m.mmus, c)

	return m
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        sim.GetIDGenerator().Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar to be shown on the webpage.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

// Router returns the handler that serves the API and the web page.
func (m *Monitor) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/api/list_mmus", m.listMMUs).Methods(http.MethodGet)
	r.HandleFunc("/api/mmu/{name}", m.mmuDetails).Methods(http.MethodGet)
	r.HandleFunc("/api/mmu/{name}/state", m.mmuState).Methods(http.MethodGet)
	r.HandleFunc("/api/mmu/{name}/stats", m.mmuStats).Methods(http.MethodGet)
	r.HandleFunc("/api/mmu/{name}/resolve/{addr}", m.resolve).
		Methods(http.MethodPost)
	r.HandleFunc("/api/field/{json}", m.listFieldValue)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)
	r.PathPrefix("/").Handler(http.FileServer(web.GetAssets()))

	return r
}

// StartServer starts the monitor as a web server in the background and
// returns its URL.
func (m *Monitor) StartServer() string {
	actualPort := ":0"
	if m.portNumber > 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring MMUs with %s\n", url)

	go func() {
		err := http.Serve(listener, m.Router())
		dieOnErr(err)
	}()

	return url
}

func (m *Monitor) listMMUs(w http.ResponseWriter, _ *http.Request) {
	m.mmusLock.Lock()
	names := make([]string, 0, len(m.mmus))
	for _, c := range m.mmus {
		names = append(names, c.Name())
	}
	m.mmusLock.Unlock()

	writeJSON(w, http.StatusOK, names)
}

func (m *Monitor) mmuDetails(w http.ResponseWriter, r *http.Request) {
	c := m.findMMUOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)
	err := serializer.Serialize(w)

	dieOnErr(err)
}

func (m *Monitor) mmuState(w http.ResponseWriter, r *http.Request) {
	c := m.findMMUOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	writeJSON(w, http.StatusOK, c.Snapshot())
}

func (m *Monitor) mmuStats(w http.ResponseWriter, r *http.Request) {
	c := m.findMMUOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	writeJSON(w, http.StatusOK, c.Stats())
}

type resolveRsp struct {
	Result   any    `json:"result,omitempty"`
	Error    string `json:"error,omitempty"`
	Accesses uint64 `json:"accesses"`
}

func (m *Monitor) resolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	c := m.findMMUOr404(w, vars["name"])
	if c == nil {
		return
	}

	addr, err := strconv.ParseUint(vars["addr"], 0, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, resolveRsp{
			Error: fmt.Sprintf("invalid address %q", vars["addr"]),
		})

		return
	}

	result, err := c.Resolve(addr)

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resolveRsp{
			Result:   result,
			Accesses: c.Stats().Accesses,
		})
	case errors.Is(err, vm.ErrAddressOutOfRange):
		writeJSON(w, http.StatusUnprocessableEntity, resolveRsp{
			Error:    err.Error(),
			Accesses: c.Stats().Accesses,
		})
	default:
		writeJSON(w, http.StatusInternalServerError, resolveRsp{
			Error:    err.Error(),
			Accesses: c.Stats().Accesses,
		})
	}
}

type fieldReq struct {
	CompName  string `json:"comp_name,omitempty"`
	FieldName string `json:"field_name,omitempty"`
}

func (m *Monitor) listFieldValue(w http.ResponseWriter, r *http.Request) {
	req := fieldReq{}

	err := json.Unmarshal([]byte(mux.Vars(r)["json"]), &req)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	c := m.findMMUOr404(w, req.CompName)
	if c == nil {
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)

	err = serializer.SetEntryPoint(strings.Split(req.FieldName, "."))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	err = serializer.Serialize(w)
	dieOnErr(err)
}

func (m *Monitor) findMMUOr404(w http.ResponseWriter, name string) *mmu.Comp {
	m.mmusLock.Lock()
	defer m.mmusLock.Unlock()

	for _, c := range m.mmus {
		if c.Name() == name {
			return c
		}
	}

	w.WriteHeader(http.StatusNotFound)
	_, err := w.Write([]byte("MMU not found"))
	dieOnErr(err)

	return nil
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	bars := make([]progressRsp, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		bars = append(bars, b.snapshot())
	}

	writeJSON(w, http.StatusOK, bars)
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, http.StatusOK, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprintf(w, "Error: %s", err)

		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, http.StatusOK, prof)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
