// Command fake-rdio is a stand-in for the Rdio Scanner call-upload API, for
// running the bridge locally. It validates and logs each upload and can save
// the recordings or answer with a fixed error status.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/audio"
	"github.com/WhackerLink/WhackerLinkRdioScanner/internal/rdio"
)

type uploadHandler struct {
	apiKey string
	outDir string
	status int // forced response status, 0 answers normally
}

func (h *uploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	if h.apiKey != "" && r.FormValue("key") != h.apiKey {
		http.Error(w, "Invalid API key", http.StatusUnauthorized)
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	info, err := audio.GetWAVInfo(data)
	if err != nil {
		http.Error(w, fmt.Sprintf("Invalid audio: %v", err), http.StatusBadRequest)
		return
	}

	log.Printf("CALL UPLOAD RECEIVED:")
	log.Printf("  Talkgroup: %s  Source: %s", r.FormValue("talkgroup"), r.FormValue("source"))
	log.Printf("  System: %s (%s)", r.FormValue("system"), r.FormValue("systemLabel"))
	log.Printf("  Date: %s", r.FormValue("dateTime"))
	log.Printf("  File: %s (%s, %s)", r.FormValue("audioName"), header.Header.Get("Content-Type"), r.FormValue("audioType"))
	log.Printf("  Audio: %d bytes, %.2fs, %d Hz", len(data), info.Duration, info.SampleRate)

	if h.outDir != "" {
		path := filepath.Join(h.outDir, filepath.Base(r.FormValue("audioName")))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			log.Printf("  Failed to save recording: %v", err)
		} else {
			log.Printf("  Saved to %s", path)
		}
	}

	if h.status != 0 {
		log.Printf("  Answering with forced status %d", h.status)
		http.Error(w, http.StatusText(h.status), h.status)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Call imported successfully.")
}

func main() {
	addr := flag.String("addr", ":3000", "Listen address")
	apiKey := flag.String("key", "", "Required API key (empty accepts any)")
	outDir := flag.String("out", "", "Directory to save received recordings")
	status := flag.Int("status", 0, "Force this HTTP status on every upload")
	flag.Parse()

	if *outDir != "" {
		if err := os.MkdirAll(*outDir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
	}

	mux := http.NewServeMux()
	mux.Handle(rdio.UploadPath, &uploadHandler{apiKey: *apiKey, outDir: *outDir, status: *status})

	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("Fake Rdio Scanner starting on %s", *addr)
	log.Printf("Endpoint: http://localhost%s%s", *addr, rdio.UploadPath)

	if err := server.ListenAndServe(); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
