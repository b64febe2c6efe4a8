package browser

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/playwright-community/playwright-go"
)

// pasteScript synthesizes a clipboard paste of the image into the composer.
// Faster than walking the upload menu, but flaky over remote CDP.
const pasteScript = `({b64, name, mime}) => {
	const bin = Uint8Array.from(atob(b64), c => c.charCodeAt(0));
	const dt = new DataTransfer();
	dt.items.add(new File([new Blob([bin], {type: mime})], name, {type: mime}));
	const el = document.querySelector("div[contenteditable='true']");
	el.dispatchEvent(new ClipboardEvent('paste', {bubbles: true, cancelable: true, clipboardData: dt}));
}`

var uploadTriggerSelectors = []string{
	"button[aria-label*='Add files' i]",
	"button[aria-label*='Dodaj pliki' i]",
	"button[aria-label*='Upload' i]",
	"button[aria-label*='Prześlij' i]",
	"button[aria-label*='plus' i]",
	"[data-test-id='uploader-button']",
}

// UploadImage attaches the image to the composer. The clipboard paste path
// is tried first and verified against the preview; on any failure it falls
// back to the file input behind the upload button, with a longer preview
// deadline because that path renders slower.
func (m *Manager) UploadImage(page playwright.Page, imagePath string) error {
	m.ClearAttachments(page)
	if err := m.WaitForComposerReady(page); err != nil {
		return err
	}

	if err := m.pasteImage(page, imagePath); err == nil {
		if err := waitForAttachmentPreview(page, 4000); err == nil {
			m.logger.Info().Msg("clipboard paste verified")
			return nil
		}
	} else {
		m.logger.Debug().Err(err).Msg("clipboard paste failed")
	}

	m.logger.Info().Msg("switching to file input fallback")
	m.clickUploadTrigger(page)
	input := page.Locator("input[type='file']").First()
	if err := input.SetInputFiles(imagePath); err != nil {
		return fmt.Errorf("set input files: %w", err)
	}
	if err := waitForAttachmentPreview(page, 15000); err != nil {
		return fmt.Errorf("attachment preview never appeared: %w", err)
	}
	return nil
}

func (m *Manager) pasteImage(page playwright.Page, imagePath string) error {
	raw, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	mime := "image/jpeg"
	switch strings.ToLower(filepath.Ext(imagePath)) {
	case ".png":
		mime = "image/png"
	case ".webp":
		mime = "image/webp"
	}

	_, err = page.Evaluate(pasteScript, map[string]interface{}{
		"b64":  base64.StdEncoding.EncodeToString(raw),
		"name": filepath.Base(imagePath),
		"mime": mime,
	})
	return err
}

func (m *Manager) clickUploadTrigger(page playwright.Page) {
	for _, sel := range uploadTriggerSelectors {
		btn := page.Locator(sel).First()
		if visible, err := btn.IsVisible(); err == nil && visible {
			if err := btn.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err == nil {
				page.WaitForTimeout(300)
				return
			}
		}
	}
}

// A blob-sourced image is the strongest signal of a pending upload preview.
func waitForAttachmentPreview(page playwright.Page, timeoutMS float64) error {
	_, err := page.WaitForSelector("img[src^='blob:']", playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(timeoutMS),
	})
	return err
}
