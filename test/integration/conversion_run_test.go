//go:build integration

package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/eliteGoblin/osmigrate/internal/config"
	"github.com/eliteGoblin/osmigrate/internal/infra"
	"github.com/eliteGoblin/osmigrate/internal/usecase"
)

const warningReport = `{
  "actions": {
    "check_kernel": {
      "result": {"id": "SUCCESS", "level": "SUCCESS"},
      "messages": [
        {
          "id": "OUTDATED_KERNEL",
          "level": "WARNING",
          "title": "Outdated kernel",
          "description": "The booted kernel is not the latest available."
        }
      ]
    }
  }
}`

const rollbackLog = `[INFO] converting
WARNING - Abnormal exit! Performing rollback ...
[ERROR] Couldn't find a backup of /etc/yum.repos.d/centos.repo
`

// writeScript drops an executable shell script at path.
func writeScript(path, body string) {
	Expect(os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755)).To(Succeed())
}

var _ = Describe("Conversion Run", func() {
	var (
		tmpDir  string
		cfg     *config.Config
		server  *httptest.Server
		runner  *infra.ExecRunner
		history *infra.HistoryStore
		undoLog string
		logger  *zap.Logger
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "osmigrate-integration-*")
		Expect(err).NotTo(HaveOccurred())

		logger = zap.NewNop()
		runner = infra.NewExecRunner(logger)
		undoLog = filepath.Join(tmpDir, "undo.log")

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, "served %s", r.URL.Path)
		}))

		releasePath := filepath.Join(tmpDir, "system-release")
		Expect(os.WriteFile(releasePath, []byte("CentOS Linux release 7.9.2009 (Core)\n"), 0644)).To(Succeed())

		// Fake yum: installs succeed, 'history list' reports transaction 7,
		// 'history undo' records the undone id for inspection.
		yumPath := filepath.Join(tmpDir, "yum")
		writeScript(yumPath, fmt.Sprintf(`case "$1" in
  install) exit 0 ;;
  update) exit 0 ;;
  history)
    case "$2" in
      list)
        echo "ID     | Command line            | Date and time    | Action(s) | Altered"
        echo "     7 | install convert2rhel -y | 2024-01-01 00:00 | Install   |    1"
        exit 0 ;;
      undo)
        echo "$4" >> %s
        exit 0 ;;
    esac ;;
esac
exit 1
`, undoLog))

		// Fake rpm: package absent, no config verification differences.
		rpmPath := filepath.Join(tmpDir, "rpm")
		writeScript(rpmPath, `case "$1" in
  -q) exit 1 ;;
  -Va) exit 0 ;;
esac
exit 1
`)

		insightsPath := filepath.Join(tmpDir, "insights-client")
		writeScript(insightsPath, "exit 0\n")

		cfg = config.Default()
		cfg.ToolPath = filepath.Join(tmpDir, "convert2rhel-sim")
		cfg.LogFile = filepath.Join(tmpDir, "convert2rhel.log")
		cfg.ReportFile = filepath.Join(tmpDir, "convert2rhel-pre-conversion.json")
		cfg.ReportTxtFile = filepath.Join(tmpDir, "convert2rhel-pre-conversion.txt")
		cfg.ArchiveDir = filepath.Join(tmpDir, "archive")
		cfg.SystemReleasePath = releasePath
		cfg.CustomConfigPath = filepath.Join(tmpDir, "custom.ini")
		cfg.YumPath = yumPath
		cfg.RPMPath = rpmPath
		cfg.InventoryPath = insightsPath
		cfg.HistoryDBPath = filepath.Join(tmpDir, "history.db")
		cfg.RequiredFiles = []config.RequiredFile{
			{Path: filepath.Join(tmpDir, "signing-key"), Source: server.URL + "/key.txt"},
			{Path: filepath.Join(tmpDir, "tool.repo"), Source: server.URL + "/tool.repo"},
		}

		history, err = infra.NewHistoryStore(cfg.HistoryDBPath, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		history.Close()
		server.Close()
		os.RemoveAll(tmpDir)
	})

	newRunner := func() *usecase.Runner {
		return usecase.NewRunner(cfg, usecase.Deps{
			Exec:       runner,
			Downloader: infra.NewHTTPDownloader(logger),
			Packages:   infra.NewYumManager(runner, cfg.YumPath, cfg.RPMPath, logger),
			Services:   infra.NewSystemdManager(runner, cfg.SystemctlPath, logger),
			Inventory:  infra.NewInsightsClient(runner, cfg.InventoryPath, logger),
			Preserver:  infra.NewBackupManager(logger),
			Host:       infra.NewHostInfo(cfg.SystemReleasePath, logger),
			Processes:  infra.NewProcessScanner(),
			History:    history,
		}, logger)
	}

	Context("when the tool succeeds with warnings", func() {
		BeforeEach(func() {
			writeScript(cfg.ToolPath, fmt.Sprintf("cat > %s <<'EOF'\n%s\nEOF\nexit 0\n",
				cfg.ReportFile, warningReport))
		})

		It("should emit a non-alerting warning verdict", func() {
			verdict := newRunner().Run(context.Background())

			Expect(verdict.Status).To(Equal("WARNING"))
			Expect(verdict.Alert).To(BeFalse())
			Expect(verdict.Message).To(ContainSubstring("converted successfully"))
			Expect(verdict.ReportJSON).To(BeNil())
		})

		It("should keep the downloaded files in place", func() {
			newRunner().Run(context.Background())

			for _, rf := range cfg.RequiredFiles {
				data, err := os.ReadFile(rf.Path)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(HavePrefix("served /"))
			}
			Expect(undoLog).NotTo(BeAnExistingFile())
		})

		It("should record the run in history", func() {
			newRunner().Run(context.Background())

			records, err := history.Recent(10)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
			Expect(records[0].Status).To(Equal("WARNING"))
			Expect(records[0].Alert).To(BeFalse())
		})
	})

	Context("when the tool fails and its own rollback breaks", func() {
		BeforeEach(func() {
			writeScript(cfg.ToolPath, fmt.Sprintf("cat > %s <<'EOF'\n%s\nEOF\nexit 1\n",
				cfg.LogFile, rollbackLog))
		})

		It("should emit an alerting rollback-failed verdict", func() {
			verdict := newRunner().Run(context.Background())

			Expect(verdict.Status).To(Equal("ERROR"))
			Expect(verdict.Alert).To(BeTrue())
			Expect(verdict.Message).To(ContainSubstring("A rollback of changes performed by convert2rhel failed."))
			Expect(verdict.Report).To(ContainSubstring("Couldn't find a backup"))
		})

		It("should reverse every change made to the host", func() {
			newRunner().Run(context.Background())

			for _, rf := range cfg.RequiredFiles {
				Expect(rf.Path).NotTo(BeAnExistingFile())
			}
			data, err := os.ReadFile(undoLog)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("7"))
		})

		It("should restore a pre-existing file it overwrote", func() {
			original := []byte("original repo definition")
			Expect(os.WriteFile(cfg.RequiredFiles[1].Path, original, 0644)).To(Succeed())

			newRunner().Run(context.Background())

			data, err := os.ReadFile(cfg.RequiredFiles[1].Path)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal(original))
		})
	})

	Context("when a custom tool configuration exists", func() {
		BeforeEach(func() {
			writeScript(cfg.ToolPath, "exit 0\n")
			Expect(os.WriteFile(cfg.CustomConfigPath, []byte("[subscription_manager]\n"), 0644)).To(Succeed())
		})

		It("should abort with an actionable precondition verdict", func() {
			verdict := newRunner().Run(context.Background())

			Expect(verdict.Status).To(Equal("ERROR"))
			Expect(verdict.Alert).To(BeTrue())
			Expect(verdict.Message).To(ContainSubstring("was found."))
			Expect(verdict.Report).To(ContainSubstring("rm -f " + cfg.CustomConfigPath))
		})
	})
})
