package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"nations/internal/catalog"
	"nations/internal/game"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

const (
	colorGold  = 0xF1C40F
	colorGreen = 0x2ECC71
	colorBlue  = 0x3498DB

	msgNotAllowed    = "❌ You are not allowed to use this command!"
	msgNoCountry     = "❌ You must create a country first!"
	msgUserNoCountry = "❌ That user has no country!"
	msgBusy          = "⚠️ The ledger is busy, try again in a moment."
	msgFailed        = "⚠️ Something went wrong, try again later."
)

type Options struct {
	Prefix       string
	AdminRole    string
	CreatorRole  string
	PayoutEvery  time.Duration
	CommandRate  rate.Limit
	CommandBurst int
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = "!"
	}
	if o.AdminRole == "" {
		o.AdminRole = "admin"
	}
	if o.CreatorRole == "" {
		o.CreatorRole = "President"
	}
	if o.PayoutEvery <= 0 {
		o.PayoutEvery = 3 * time.Hour
	}
	if o.CommandRate == 0 {
		o.CommandRate = rate.Every(time.Second)
	}
	if o.CommandBurst <= 0 {
		o.CommandBurst = 5
	}
	return o
}

// Invocation is a chat message reduced to what the command layer needs.
type Invocation struct {
	AuthorID  string
	RoleNames []string
	Content   string
}

// Reply is either plain text or an embed.
type Reply struct {
	Content string
	Embed   *discordgo.MessageEmbed
}

type Handler struct {
	game    *game.Service
	opts    Options
	period  string
	limiter *userLimiter
	log     *slog.Logger
}

func NewHandler(gameSvc *game.Service, logger *slog.Logger, opts Options) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	return &Handler{
		game:    gameSvc,
		opts:    opts,
		period:  shortDuration(opts.PayoutEvery),
		limiter: newUserLimiter(opts.CommandRate, opts.CommandBurst),
		log:     logger,
	}
}

// Handle runs one chat command. ok is false when the message is not a known command.
func (h *Handler) Handle(ctx context.Context, inv Invocation) (Reply, bool) {
	cmd, ok := ParseCommand(inv.Content, h.opts.Prefix)
	if !ok {
		return Reply{}, false
	}
	run, ok := h.commands()[cmd.Name]
	if !ok {
		return Reply{}, false
	}
	if !h.limiter.Allow(inv.AuthorID) {
		return text("⏳ Slow down, you are sending commands too fast."), true
	}
	isAdmin, canCreate := Capabilities(inv.RoleNames, h.opts.AdminRole, h.opts.CreatorRole)
	caller := game.Caller{OwnerID: inv.AuthorID, IsAdmin: isAdmin, CanCreate: canCreate}
	return run(ctx, caller, cmd), true
}

type commandFunc func(ctx context.Context, caller game.Caller, cmd Command) Reply

func (h *Handler) commands() map[string]commandFunc {
	return map[string]commandFunc{
		"create_country": h.createCountry,
		"balance":        h.balance,
		"shop":           h.shop,
		"buy":            h.buy,
		"leaderboard":    h.leaderboard,
		"transfer":       h.transfer,
		"countries":      h.countries,
		"edit_country":   h.editCountry,
		"delete_country": h.deleteCountry,
		"add_balance":    h.addBalance,
		"remove_balance": h.removeBalance,
		"cmds":           h.help,
	}
}

func (h *Handler) createCountry(ctx context.Context, caller game.Caller, cmd Command) Reply {
	if cmd.Rest == "" {
		return h.usage("create_country <name>")
	}
	country, err := h.game.CreateCountry(ctx, caller, cmd.Rest)
	switch {
	case errors.Is(err, game.ErrUnauthorized):
		return text(fmt.Sprintf("❌ You must have the '%s' role to create a country!", h.opts.CreatorRole))
	case errors.Is(err, game.ErrAlreadyExists):
		return text("❌ You already own a country!")
	case err != nil:
		return h.fail(err)
	}
	return text(fmt.Sprintf("🌍 Country **%s** created with %d coins and %d base income!", country.Name, country.Wallet, country.Income))
}

func (h *Handler) balance(ctx context.Context, caller game.Caller, cmd Command) Reply {
	owner := caller.OwnerID
	if len(cmd.Args) > 0 {
		id, ok := ParseMention(cmd.Args[0])
		if !ok {
			return h.usage("balance [@user]")
		}
		owner = id
	}
	country, err := h.game.Balance(ctx, owner)
	switch {
	case errors.Is(err, game.ErrNotFound):
		return text("❌ This user has no country!")
	case err != nil:
		return h.fail(err)
	}
	items := strings.Join(country.ItemIDs(), ", ")
	if items == "" {
		items = "None"
	}
	return Reply{Embed: &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🌍 %s Economy", country.Name),
		Color: colorGold,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Wallet 💰", Value: strconv.FormatInt(country.Wallet, 10), Inline: true},
			{Name: fmt.Sprintf("Income (per %s) 📈", h.period), Value: strconv.FormatInt(country.Income, 10), Inline: true},
			{Name: "Items 🏗️", Value: items, Inline: true},
		},
	}}
}

func (h *Handler) shop(_ context.Context, _ game.Caller, _ Command) Reply {
	items := h.game.Shop()
	fields := make([]*discordgo.MessageEmbedField, 0, len(items))
	for _, it := range items {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  capitalize(it.ID),
			Value: fmt.Sprintf("Price: %d | Income: +%d/%s", it.Price, it.Income, h.period),
		})
	}
	return Reply{Embed: &discordgo.MessageEmbed{Title: "🛒 Global Shop", Color: colorGreen, Fields: fields}}
}

func (h *Handler) buy(ctx context.Context, caller game.Caller, cmd Command) Reply {
	if cmd.Rest == "" {
		return h.usage("buy <item>")
	}
	p, err := h.game.Buy(ctx, caller, cmd.Rest)
	switch {
	case errors.Is(err, game.ErrNotFound):
		return text(msgNoCountry)
	case errors.Is(err, catalog.ErrUnknownItem):
		return text("❌ Item not found in shop!")
	case errors.Is(err, game.ErrInsufficientFunds):
		return text("❌ Not enough money!")
	case err != nil:
		return h.fail(err)
	}
	return text(fmt.Sprintf("✅ Bought **%s**! Income increased by %d.", p.Item.ID, p.Item.Income))
}

func (h *Handler) leaderboard(ctx context.Context, _ game.Caller, _ Command) Reply {
	rows, err := h.game.Leaderboard(ctx, game.DefaultLeaderboardSize)
	if err != nil {
		return h.fail(err)
	}
	fields := make([]*discordgo.MessageEmbedField, 0, len(rows))
	for _, row := range rows {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  fmt.Sprintf("%d. %s", row.Rank, row.Name),
			Value: fmt.Sprintf("<@%s> | 💰 %d | 📈 %d/%s", row.OwnerID, row.Wallet, row.Income, h.period),
		})
	}
	return Reply{Embed: &discordgo.MessageEmbed{Title: "🏆 Richest Countries Leaderboard", Color: colorBlue, Fields: fields}}
}

func (h *Handler) transfer(ctx context.Context, caller game.Caller, cmd Command) Reply {
	to, amount, ok := mentionAndAmount(cmd)
	if !ok {
		return h.usage("transfer @user <amount>")
	}
	if amount <= 0 {
		return text("❌ Amount must be greater than 0!")
	}
	if _, err := h.game.Balance(ctx, caller.OwnerID); err != nil {
		if errors.Is(err, game.ErrNotFound) {
			return text(msgNoCountry)
		}
		return h.fail(err)
	}
	res, err := h.game.Transfer(ctx, caller, to, amount)
	switch {
	case errors.Is(err, game.ErrNotFound):
		return text(msgUserNoCountry)
	case errors.Is(err, game.ErrInsufficientFunds):
		return text("❌ You don't have enough money!")
	case err != nil:
		return h.fail(err)
	}
	return text(fmt.Sprintf("✅ Transferred %d coins from **%s** to **%s**!", res.Amount, res.Sender.Name, res.Receiver.Name))
}

func (h *Handler) countries(ctx context.Context, caller game.Caller, _ Command) Reply {
	all, err := h.game.Countries(ctx, caller)
	switch {
	case errors.Is(err, game.ErrUnauthorized):
		return text(msgNotAllowed)
	case err != nil:
		return h.fail(err)
	}
	if len(all) == 0 {
		return text("No countries exist yet.")
	}
	var b strings.Builder
	for _, c := range all {
		fmt.Fprintf(&b, "**%s** (Owner: <@%s>)\n💰 %d | 📈 %d/%s\n\n", c.Name, c.OwnerID, c.Wallet, c.Income, h.period)
	}
	return text(strings.TrimRight(b.String(), "\n"))
}

func (h *Handler) editCountry(ctx context.Context, caller game.Caller, cmd Command) Reply {
	if !caller.IsAdmin {
		return text(msgNotAllowed)
	}
	if len(cmd.Args) != 3 {
		return h.usage("edit_country @user <wallet/income> <value>")
	}
	owner, ok := ParseMention(cmd.Args[0])
	value, err := strconv.ParseInt(cmd.Args[2], 10, 64)
	if !ok || err != nil {
		return h.usage("edit_country @user <wallet/income> <value>")
	}
	_, err = h.game.SetField(ctx, caller, owner, cmd.Args[1], value)
	switch {
	case errors.Is(err, game.ErrNotFound):
		return text(msgUserNoCountry)
	case errors.Is(err, game.ErrInvalidArgument):
		return text("❌ You can only edit 'wallet' or 'income'!")
	case err != nil:
		return h.fail(err)
	}
	return text(fmt.Sprintf("✅ Edited <@%s>'s %s to %d.", owner, strings.ToLower(cmd.Args[1]), value))
}

func (h *Handler) deleteCountry(ctx context.Context, caller game.Caller, cmd Command) Reply {
	if !caller.IsAdmin {
		return text(msgNotAllowed)
	}
	if len(cmd.Args) != 1 {
		return h.usage("delete_country @user")
	}
	owner, ok := ParseMention(cmd.Args[0])
	if !ok {
		return h.usage("delete_country @user")
	}
	err := h.game.DeleteCountry(ctx, caller, owner)
	switch {
	case errors.Is(err, game.ErrNotFound):
		return text(msgUserNoCountry)
	case err != nil:
		return h.fail(err)
	}
	return text(fmt.Sprintf("🗑️ Deleted <@%s>'s country.", owner))
}

func (h *Handler) addBalance(ctx context.Context, caller game.Caller, cmd Command) Reply {
	return h.adjust(ctx, caller, cmd, game.Add)
}

func (h *Handler) removeBalance(ctx context.Context, caller game.Caller, cmd Command) Reply {
	return h.adjust(ctx, caller, cmd, game.Remove)
}

func (h *Handler) adjust(ctx context.Context, caller game.Caller, cmd Command, sign game.Sign) Reply {
	if !caller.IsAdmin {
		return text(msgNotAllowed)
	}
	owner, amount, ok := mentionAndAmount(cmd)
	if !ok {
		if sign == game.Add {
			return h.usage("add_balance @user <amount>")
		}
		return h.usage("remove_balance @user <amount>")
	}
	if amount <= 0 {
		return text("❌ Amount must be greater than 0!")
	}
	country, err := h.game.AdjustBalance(ctx, caller, owner, amount, sign)
	switch {
	case errors.Is(err, game.ErrNotFound):
		return text(msgUserNoCountry)
	case errors.Is(err, game.ErrInsufficientFunds):
		return text("❌ User doesn't have that much money!")
	case err != nil:
		return h.fail(err)
	}
	if sign == game.Add {
		return text(fmt.Sprintf("✅ Added %d coins to **%s**!", amount, country.Name))
	}
	return text(fmt.Sprintf("✅ Removed %d coins from **%s**!", amount, country.Name))
}

func (h *Handler) help(_ context.Context, caller game.Caller, _ Command) Reply {
	p := h.opts.Prefix
	field := func(name, value string) *discordgo.MessageEmbedField {
		return &discordgo.MessageEmbedField{Name: name, Value: value}
	}
	fields := []*discordgo.MessageEmbedField{
		field(p+"create_country <name>", fmt.Sprintf("Create your own country (needs %s role)", h.opts.CreatorRole)),
		field(p+"balance [@user]", "Check your or another user's country balance"),
		field(p+"shop", "View the global shop"),
		field(p+"buy <item>", "Buy an item from the shop"),
		field(p+"leaderboard", "Show richest countries"),
		field(p+"transfer @user <amount>", "Transfer money to another country"),
	}
	if caller.IsAdmin {
		fields = append(fields,
			field("👑 Admin Commands", fmt.Sprintf("(Visible only to %s role)", h.opts.AdminRole)),
			field(p+"countries", "See all countries and stats"),
			field(p+"edit_country @user <wallet/income> <value>", "Edit a country's wallet or income"),
			field(p+"delete_country @user", "Delete a country"),
			field(p+"add_balance @user <amount>", "Add coins to a country's wallet"),
			field(p+"remove_balance @user <amount>", "Remove coins from a country's wallet"),
		)
	}
	return Reply{Embed: &discordgo.MessageEmbed{Title: "📜 Economy Bot Commands", Color: colorBlue, Fields: fields}}
}

func (h *Handler) fail(err error) Reply {
	if game.Retryable(err) {
		h.log.Warn("command hit storage failure", "err", err)
		return text(msgBusy)
	}
	if errors.Is(err, game.ErrInvalidArgument) {
		return text("❌ " + strings.TrimPrefix(err.Error(), game.ErrInvalidArgument.Error()+": "))
	}
	if errors.Is(err, game.ErrUnauthorized) {
		return text(msgNotAllowed)
	}
	h.log.Error("command failed", "kind", game.Kind(err), "err", err)
	return text(msgFailed)
}

func mentionAndAmount(cmd Command) (string, int64, bool) {
	if len(cmd.Args) != 2 {
		return "", 0, false
	}
	id, ok := ParseMention(cmd.Args[0])
	if !ok {
		return "", 0, false
	}
	amount, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return id, amount, true
}

func text(s string) Reply {
	return Reply{Content: s}
}

func (h *Handler) usage(s string) Reply {
	return text("❌ Usage: " + h.opts.Prefix + s)
}
