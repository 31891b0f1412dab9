package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

	"cuttlefish/core"
	"cuttlefish/lib/sl"
	"cuttlefish/storage"
)

const (
	updateTimeout    = 60
	chatActionPeriod = 5 * time.Second
	recentLimit      = 5
)

const welcomeText = `🦑 *Cuttlefish*

I can generate images with several AI models:

🔥 *FLUX Dev* - high quality general purpose model
🌟 *HiDream Pro* - artistic and dreamy style
✨ *Kontext Pro* - can edit existing images with a reference
⚡ *FLUX Schnell* - fast drafts

*Commands:*
• /flux <prompt> - generate with FLUX Dev
• /hidream <prompt> - generate with HiDream Pro
• /kontext <prompt> - generate with Kontext Pro
• /fast <prompt> - generate with FLUX Schnell
• /recent - your latest generations

*Orientation options:*
Add --landscape or -l for landscape orientation
Add --portrait or -p for portrait orientation (default)
Add --square or -s for a 1024x1024 square

*Examples:*
• /flux a beautiful sunset (portrait)
• /flux --landscape a beautiful sunset (landscape)
• /hidream -l cyberpunk city (landscape)

*For image editing:*
Send an image with a caption describing the changes you want to make!

Example: send a photo with caption "Turn this into a pencil sketch"`

const usageText = `🦑 *Cuttlefish*

💡 To generate an image, use:
• /flux <prompt> - FLUX Dev
• /hidream <prompt> - HiDream Pro
• /kontext <prompt> - Kontext Pro
• /fast <prompt> - FLUX Schnell

*Options:*
• Add --landscape or -l for landscape
• Add --portrait or -p for portrait (default)
• Add --square or -s for square (1024x1024)
• Add -n <number> to generate multiple images (max 10)

*Examples:*
• /flux --landscape -n 2 a sunset (2 landscape images)
• /flux -s a sunset (square image)

Or send an image with a caption to edit it! Example: "-s -n 3 -max Turn this into a pencil sketch". The -max option uses Kontext Max.`

// TgBot is the telegram transport: it receives updates, hands each message
// to a handler goroutine and renders the outcome back into the chat. All
// generation work goes through the image service; the bot itself only does
// parsing and delivery.
type TgBot struct {
	conf       *core.Config
	log        *slog.Logger
	api        *tgbotapi.BotAPI
	images     core.ImageService
	httpClient *http.Client
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewTgBot(conf *core.Config, log *slog.Logger) (*TgBot, error) {
	api, err := tgbotapi.NewBotAPI(conf.TelegramApiKey)
	if err != nil {
		return nil, fmt.Errorf("authorizing bot: %w", err)
	}

	timeout := conf.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &TgBot{
		conf:       conf,
		log:        log.With(sl.Module("tgbot")),
		api:        api,
		httpClient: &http.Client{Timeout: timeout},
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// SetImages wires in the service that handles generation requests.
func (t *TgBot) SetImages(images core.ImageService) {
	t.images = images
}

// Start runs the update loop until Stop is called. Every accepted message
// is handled in its own goroutine, so a slow generation in one chat never
// stalls another.
func (t *TgBot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = updateTimeout

	updates, err := t.api.GetUpdatesChan(u)
	if err != nil {
		return err
	}
	t.log.Info("listening for updates", slog.String("account", t.api.Self.UserName))

	for {
		select {
		case <-t.ctx.Done():
			return nil
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if !t.wants(update.Message) {
				continue
			}
			t.logIncoming(update.Message)
			t.wg.Add(1)
			go t.handleMessage(update.Message)
		}
	}
}

// Stop cancels in-flight generations, stops the update stream and waits for
// the handlers to deliver their final responses.
func (t *TgBot) Stop() {
	t.cancel()
	t.api.StopReceivingUpdates()
	t.wg.Wait()
}

// wants filters the update stream: photos with a caption and commands are
// always ours, plain text only in private chats. Everything else is group
// chatter the bot stays out of.
func (t *TgBot) wants(incoming *tgbotapi.Message) bool {
	if hasPhoto(incoming) && strings.TrimSpace(incoming.Caption) != "" {
		return true
	}
	if incoming.IsCommand() {
		return true
	}
	return incoming.Chat.IsPrivate() && strings.TrimSpace(incoming.Text) != ""
}

func (t *TgBot) handleMessage(incoming *tgbotapi.Message) {
	defer t.wg.Done()

	switch {
	case hasPhoto(incoming) && strings.TrimSpace(incoming.Caption) != "":
		t.handlePhoto(incoming)
	case incoming.IsCommand():
		t.handleCommand(incoming)
	default:
		t.markdownResponse(incoming.Chat.ID, usageText)
	}
}

func (t *TgBot) handleCommand(incoming *tgbotapi.Message) {
	switch command := incoming.Command(); command {
	case "start", "help":
		t.markdownResponse(incoming.Chat.ID, welcomeText)
	case "recent":
		t.handleRecent(incoming.Chat.ID)
	case "flux", "hidream", "kontext", "fast":
		t.handleGenerate(incoming, command)
	default:
		t.log.With(sl.Session(incoming.Chat.ID)).Debug("ignoring unknown command",
			slog.String("command", command))
	}
}

// handleGenerate runs one generation command. The command name doubles as
// the model key.
func (t *TgBot) handleGenerate(incoming *tgbotapi.Message, modelKey string) {
	chatId := incoming.Chat.ID

	raw := incoming.CommandArguments()
	if strings.TrimSpace(raw) == "" {
		t.markdownResponse(chatId, noPromptText(modelKey))
		return
	}

	args := parseArgs(strings.Fields(raw))
	if args.Prompt == "" {
		t.markdownResponse(chatId, optionsOnlyText(modelKey))
		return
	}

	model, ok := core.ModelByKey(modelKey)
	if !ok {
		t.markdownResponse(chatId, usageText)
		return
	}

	statusId := t.sendStatus(incoming, fmt.Sprintf(
		"🎨 Generating %s in %s with %s...\n*Prompt:* %s",
		countLabel(args.Count), orientationLabel(args.Orientation), model.Name, args.Prompt))

	outcome := t.runGeneration(chatId, args.Prompt, core.Options{
		Model:       modelKey,
		Orientation: args.Orientation,
		Count:       args.Count,
	})

	t.deliver(incoming, statusId, outcome, func(i int) string {
		caption := fmt.Sprintf("🎨 Generated with %s (%s)\n*Prompt:* %s",
			model.Name, orientationLabel(args.Orientation), args.Prompt)
		if args.Count > 1 {
			caption += fmt.Sprintf("\n*Image %d of %d*", i+1, args.Count)
		}
		return caption
	})
}

// handlePhoto is the editing flow: the attached photo becomes the reference
// image and the caption describes the changes. The caption takes the same
// flags as a command; -max selects Kontext Max.
func (t *TgBot) handlePhoto(incoming *tgbotapi.Message) {
	chatId := incoming.Chat.ID
	caption := strings.TrimSpace(incoming.Caption)

	args := parseArgs(strings.Fields(caption))
	if args.Prompt == "" {
		// the caption was all flags: use it verbatim with the defaults
		args = Args{Orientation: core.OrientationPortrait, Count: 1, Prompt: caption}
	}

	modelKey := "kontext"
	if args.UseMax {
		modelKey = "kontext-max"
	}
	model, _ := core.ModelByKey(modelKey)

	statusId := t.sendStatus(incoming, fmt.Sprintf(
		"🔄 Processing your image to generate %s for %s editing with %s...",
		countLabel(args.Count), orientationLabel(args.Orientation), model.Name))

	reference, err := t.referenceImage(incoming)
	if err != nil {
		t.log.With(sl.Session(chatId)).Error("fetching reference image", sl.Err(err))
		t.editStatus(chatId, statusId, "❌ Failed to process the reference image.", "")
		return
	}

	t.editStatus(chatId, statusId, fmt.Sprintf(
		"🎨 Editing image with %s (%s)...\n*Changes:* %s\n*Generating %s...*",
		model.Name, orientationLabel(args.Orientation), args.Prompt, countLabel(args.Count)), tgbotapi.ModeMarkdown)

	outcome := t.runGeneration(chatId, args.Prompt, core.Options{
		Model:       modelKey,
		Orientation: args.Orientation,
		Count:       args.Count,
		Reference:   reference,
	})

	t.deliver(incoming, statusId, outcome, func(i int) string {
		caption := fmt.Sprintf("✨ Edited with %s (%s)\n*Changes:* %s",
			model.Name, orientationLabel(args.Orientation), args.Prompt)
		if args.Count > 1 {
			caption += fmt.Sprintf("\n*Image %d of %d*", i+1, args.Count)
		}
		return caption
	})
}

func (t *TgBot) handleRecent(chatId int64) {
	records, err := t.images.Recent(chatId, recentLimit)
	if err != nil {
		t.log.With(sl.Session(chatId)).Error("reading history", sl.Err(err))
		t.plainResponse(chatId, "❌ Could not read the generation history.")
		return
	}
	if len(records) == 0 {
		t.plainResponse(chatId, "No generations in this chat yet.")
		return
	}

	lines := make([]string, 0, len(records)+1)
	lines = append(lines, "Recent generations:")
	for _, rec := range records {
		lines = append(lines, formatRecord(rec))
	}
	t.plainResponse(chatId, strings.Join(lines, "\n"))
}

// runGeneration calls the image service while a chat action ticker shows
// the user something is happening. The bot's run context flows in, so a
// shutdown cancels the generation and the user gets a short acknowledgment.
func (t *TgBot) runGeneration(chatId int64, prompt string, opts core.Options) core.Outcome {
	actionCtx, stopAction := context.WithCancel(t.ctx)
	defer stopAction()
	go t.chatAction(actionCtx, chatId, tgbotapi.ChatUploadPhoto)

	return t.images.Generate(t.ctx, chatId, prompt, opts)
}

// deliver resolves one request with exactly one terminal action: either all
// images are sent and the status message removed, or the status message is
// turned into the failure text.
func (t *TgBot) deliver(incoming *tgbotapi.Message, statusId int, outcome core.Outcome, caption func(i int) string) {
	chatId := incoming.Chat.ID

	if !outcome.OK() {
		t.editStatus(chatId, statusId, userText(outcome.Err), "")
		return
	}

	for i, img := range outcome.Images {
		photo := tgbotapi.NewPhotoUpload(chatId, tgbotapi.FileBytes{
			Name:  fileName(img.MIME),
			Bytes: img.Data,
		})
		photo.Caption = caption(i)
		photo.ParseMode = tgbotapi.ModeMarkdown
		photo.ReplyToMessageID = incoming.MessageID
		if _, err := t.api.Send(photo); err != nil {
			t.log.With(sl.Session(chatId)).Error("sending photo", sl.Err(err))
			t.editStatus(chatId, statusId, "❌ Generated the image but could not deliver it. Please try again.", "")
			return
		}
	}
	t.deleteStatus(chatId, statusId)
}

// chatAction keeps resending a chat action until the context is cancelled.
// Telegram drops the indicator after about five seconds, hence the period.
func (t *TgBot) chatAction(ctx context.Context, chatId int64, action string) {
	ticker := time.NewTicker(chatActionPeriod)
	defer ticker.Stop()

	for {
		if _, err := t.api.Send(tgbotapi.NewChatAction(chatId, action)); err != nil {
			t.log.With(sl.Session(chatId)).Warn("sending chat action", sl.Err(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// sendStatus posts the progress message the request will later resolve.
// Zero means the send failed; the terminal text then goes out as a fresh
// message instead of an edit.
func (t *TgBot) sendStatus(incoming *tgbotapi.Message, text string) int {
	msg := tgbotapi.NewMessage(incoming.Chat.ID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyToMessageID = incoming.MessageID

	sent, err := t.api.Send(msg)
	if err != nil {
		t.log.With(sl.Session(incoming.Chat.ID)).Error("sending status message", sl.Err(err))
		return 0
	}
	return sent.MessageID
}

func (t *TgBot) editStatus(chatId int64, messageId int, text, parseMode string) {
	if messageId == 0 {
		msg := tgbotapi.NewMessage(chatId, text)
		msg.ParseMode = parseMode
		if _, err := t.api.Send(msg); err != nil {
			t.log.With(sl.Session(chatId)).Error("sending message", sl.Err(err))
		}
		return
	}

	edit := tgbotapi.NewEditMessageText(chatId, messageId, text)
	edit.ParseMode = parseMode
	if _, err := t.api.Send(edit); err != nil {
		t.log.With(sl.Session(chatId)).Error("editing status message", sl.Err(err))
	}
}

func (t *TgBot) deleteStatus(chatId int64, messageId int) {
	if messageId == 0 {
		return
	}
	if _, err := t.api.DeleteMessage(tgbotapi.NewDeleteMessage(chatId, messageId)); err != nil {
		t.log.With(sl.Session(chatId)).Warn("deleting status message", sl.Err(err))
	}
}

func (t *TgBot) plainResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	if _, err := t.api.Send(msg); err != nil {
		t.log.With(sl.Session(chatId)).Error("sending message", sl.Err(err))
	}
}

func (t *TgBot) markdownResponse(chatId int64, text string) {
	msg := tgbotapi.NewMessage(chatId, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := t.api.Send(msg); err != nil {
		t.log.With(sl.Session(chatId)).Error("sending message", sl.Err(err))
	}
}

// referenceImage downloads the largest size of the attached photo and
// returns it as the raw base64 string the generation API expects.
func (t *TgBot) referenceImage(incoming *tgbotapi.Message) (string, error) {
	if !hasPhoto(incoming) {
		return "", errors.New("message carries no photo")
	}
	sizes := *incoming.Photo
	largest := sizes[len(sizes)-1]

	url, err := t.api.GetFileDirectURL(largest.FileID)
	if err != nil {
		return "", fmt.Errorf("resolving file url: %w", err)
	}

	req, err := http.NewRequestWithContext(t.ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("making download request: %w", err)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading photo: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			t.log.Warn("closing response body", sl.Err(err))
		}
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("photo download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading photo: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (t *TgBot) logIncoming(incoming *tgbotapi.Message) {
	text := incoming.Text
	if text == "" {
		text = incoming.Caption
	}
	if len(text) > 50 {
		text = text[:50] + "..."
	}
	user := ""
	if incoming.From != nil {
		user = incoming.From.UserName
	}
	t.log.With(
		sl.Session(incoming.Chat.ID),
		slog.String("user", user),
	).Info("incoming message", slog.String("text", text))
}

func hasPhoto(incoming *tgbotapi.Message) bool {
	return incoming.Photo != nil && len(*incoming.Photo) > 0
}

// userText maps a failure onto the message shown to the user. Cancelled is
// deliberately quiet: a short acknowledgment, not an error.
func userText(err error) string {
	switch core.KindOf(err) {
	case core.KindInvalidPrompt:
		var genErr *core.GenError
		if errors.As(err, &genErr) && genErr.Message == "too_long" {
			return "❌ That prompt is too long. Please shorten it and try again."
		}
		return "❌ Please provide a prompt describing the image you want."
	case core.KindSessionBusy:
		return "⏳ A generation is already running in this chat. Please wait for it to finish."
	case core.KindRateLimited:
		if hint := core.RetryAfterOf(err); hint > 0 {
			return fmt.Sprintf("⏳ The image service is rate limiting us. Please try again in %s.", hint.Round(time.Second))
		}
		return "⏳ The image service is rate limiting us. Please try again in a minute."
	case core.KindRejected:
		return "🚫 The image service refused this prompt. Please try a different one."
	case core.KindTimeout:
		return "⌛ The image did not arrive in time. Please try again."
	case core.KindCancelled:
		return "Generation cancelled."
	default:
		return "❌ Failed to generate image. Please try again."
	}
}

// formatRecord renders one history line for /recent.
func formatRecord(rec storage.Record) string {
	status := "✅"
	if rec.Outcome != "ok" {
		status = "❌"
	}
	prompt := rec.Prompt
	if runes := []rune(prompt); len(runes) > 60 {
		prompt = string(runes[:60]) + "..."
	}
	line := fmt.Sprintf("%s %s: %s", status, rec.Model, prompt)
	if rec.Outcome != "ok" {
		line += " (" + rec.Outcome + ")"
	}
	return line
}

func noPromptText(modelKey string) string {
	return fmt.Sprintf("Please provide a prompt! Examples:\n"+
		"• `/%s a beautiful sunset` (portrait)\n"+
		"• `/%s --landscape a beautiful sunset` (landscape)\n"+
		"• `/%s --square a beautiful sunset` (square)\n"+
		"• `/%s -n 3 -s a beautiful sunset` (generate 3 square images)",
		modelKey, modelKey, modelKey, modelKey)
}

func optionsOnlyText(modelKey string) string {
	return fmt.Sprintf("Please provide a prompt after the options!\n"+
		"Example: `/%s --landscape -n 2 a beautiful sunset`", modelKey)
}

func countLabel(count int) string {
	if count == 1 {
		return "1 image"
	}
	return fmt.Sprintf("%d images", count)
}

func orientationLabel(orientation string) string {
	switch orientation {
	case core.OrientationLandscape:
		return "🖼️ Landscape"
	case core.OrientationSquare:
		return "⬛ Square"
	default:
		return "📱 Portrait"
	}
}

func fileName(mime string) string {
	if mime == "image/png" {
		return "image.png"
	}
	return "image.jpg"
}
